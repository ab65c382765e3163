// Package authz carries the acting user and the permissions they hold.
package authz

import (
	"fmt"     // Message formatting
	"strings" // Permission list parsing

	"settlement_ledger/internal/domain" // Roles and errors
)

// Permission names an administrative capability.
type Permission string

const (
	PayEarnings             Permission = "delivery_agent_earning.process_payment"
	ProcessCash             Permission = "delivery_agent_cash_collection.process"
	ProcessAgentWithdrawal  Permission = "delivery_agent_withdrawal.process"
	ProcessSellerWithdrawal Permission = "seller_withdrawal.process"
	SettleCommissions       Permission = "commission.settle"
	RecordIntake            Permission = "settlement_intake.record" // Engagements and statements from fulfillment
)

// All lists every permission; administrators hold all of them.
var All = []Permission{PayEarnings, ProcessCash, ProcessAgentWithdrawal, ProcessSellerWithdrawal, SettleCommissions, RecordIntake}

// Context identifies who is performing an operation.
type Context struct {
	ActorID     uint
	Role        domain.Role
	Permissions map[Permission]bool
}

// ForUser builds the context for an authenticated user. Extra permissions are granted on top
// of those implied by the role.
func ForUser(id uint, role domain.Role, extra ...Permission) Context {
	perms := make(map[Permission]bool)
	if role == domain.RoleAdmin {
		for _, p := range All {
			perms[p] = true
		}
	}
	for _, p := range extra {
		perms[p] = true
	}
	return Context{ActorID: id, Role: role, Permissions: perms}
}

// FromUser builds the context for a stored user, including their granted permissions.
func FromUser(u domain.User) Context {
	var extra []Permission
	for _, p := range strings.Split(u.Permissions, ",") {
		if p = strings.TrimSpace(p); p != "" {
			extra = append(extra, Permission(p))
		}
	}
	return ForUser(u.ID, u.Role, extra...)
}

// System is the context used by background jobs; it holds every permission.
func System() Context {
	return ForUser(0, domain.RoleAdmin)
}

// Can reports whether the actor holds p.
func (c Context) Can(p Permission) bool {
	return c.Permissions[p]
}

// Require fails with a forbidden error when the actor lacks p.
func (c Context) Require(p Permission) error {
	if c.Can(p) {
		return nil
	}
	return domain.Forbidden(fmt.Sprintf("missing permission %s", p))
}

// ActsFor reports whether the actor may act on behalf of the payee.
func (c Context) ActsFor(payeeID uint) bool {
	return c.Role == domain.RoleAdmin || (c.ActorID != 0 && c.ActorID == payeeID)
}

// WithdrawalPermission returns the permission needed to decide a request from the payee type.
func WithdrawalPermission(t domain.PayeeType) Permission {
	if t == domain.PayeeDeliveryAgent {
		return ProcessAgentWithdrawal
	}
	return ProcessSellerWithdrawal
}
