// Package batch fans one settlement action out over many entities.
//
// Every item is its own unit of work. A failed item is reported and never stops or
// undoes the others.
package batch

import (
	"context" // Request scoped cancellation
	"fmt"     // Message formatting

	"settlement_ledger/internal/authz"      // Permission checks
	"settlement_ledger/internal/commission" // Commission settlement
	"settlement_ledger/internal/domain"     // Importing domain models
	"settlement_ledger/internal/payout"     // Earnings payouts
	"settlement_ledger/internal/withdrawal" // Withdrawal decisions

	"github.com/shopspring/decimal" // Exact money arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
	"golang.org/x/sync/errgroup"    // Bounded fan-out
)

// Kind selects which settlement action a batch runs.
type Kind string

const (
	KindEarnings    Kind = "earnings"
	KindCommissions Kind = "commissions"
	KindWithdrawals Kind = "withdrawals"
)

// Selector describes the set of entities to settle. With IDs empty, every eligible entity of
// the kind is selected, optionally narrowed to one owner.
type Selector struct {
	Kind     Kind   `json:"kind" binding:"required"`
	OwnerID  uint   `json:"owner_id"`
	IDs      []uint `json:"ids"`
	Decision string `json:"decision"` // withdrawals only: approved or rejected
	Remark   string `json:"remark"`   // withdrawals only
}

// Item is the outcome of one entity, in selection order.
type Item struct {
	ID        uint             `json:"id"`
	Success   bool             `json:"success"`
	OwnerID   uint             `json:"owner_id,omitempty"`  // Wallet credited or debited, on success
	Direction domain.Direction `json:"direction,omitempty"` // Direction of the ledger entry, if one was written
	Kind      domain.ErrorKind `json:"kind,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Amount    decimal.Decimal  `json:"amount"`
}

// Failure names a failed entity and why.
type Failure struct {
	ID     uint             `json:"id"`
	Kind   domain.ErrorKind `json:"kind"`
	Reason string           `json:"reason"`
}

// Report aggregates a batch.
type Report struct {
	Items         []Item          `json:"items"`
	Succeeded     []uint          `json:"succeeded"`
	Failed        []Failure       `json:"failed"`
	SettledAmount decimal.Decimal `json:"settled_amount"` // Sum of settled amounts, credits and debits alike
}

// Orchestrator drives payouts, commission settlements and withdrawal decisions in bulk.
type Orchestrator struct {
	payouts     *payout.Processor
	commissions *commission.Settler
	withdrawals *withdrawal.Workflow
	concurrency int
}

// NewOrchestrator creates an orchestrator running at most concurrency items at a time.
func NewOrchestrator(payouts *payout.Processor, commissions *commission.Settler, withdrawals *withdrawal.Workflow, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{payouts: payouts, commissions: commissions, withdrawals: withdrawals, concurrency: concurrency}
}

// outcome is what one successful item moved, and for whom.
type outcome struct {
	ownerID   uint
	direction domain.Direction
	amount    decimal.Decimal
}

type action func(ctx context.Context, id uint) (outcome, error)

// SettleAll applies the selector's action to every selected entity.
func (o *Orchestrator) SettleAll(ctx context.Context, actor authz.Context, sel Selector) (*Report, error) {
	run, err := o.action(actor, sel)
	if err != nil {
		return nil, err
	}
	ids, err := o.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(ids))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			items[i] = settleOne(ctx, run, id)
			return nil
		})
	}
	_ = g.Wait() // items carry their own errors

	report := collect(items)
	logrus.WithFields(logrus.Fields{
		"kind":           sel.Kind,
		"owner_id":       sel.OwnerID,
		"actor_id":       actor.ActorID,
		"selected":       len(ids),
		"succeeded":      len(report.Succeeded),
		"failed":         len(report.Failed),
		"settled_amount": report.SettledAmount.StringFixed(2),
	}).Info("Batch settlement finished")
	return report, nil
}

func (o *Orchestrator) action(actor authz.Context, sel Selector) (action, error) {
	switch sel.Kind {
	case KindEarnings:
		if err := actor.Require(authz.PayEarnings); err != nil {
			return nil, err
		}
		return func(ctx context.Context, id uint) (outcome, error) {
			out, err := o.payouts.ProcessPayout(ctx, actor, id)
			if err != nil {
				return outcome{}, err
			}
			return outcome{ownerID: out.Engagement.DeliveryAgentID, direction: out.Entry.Direction, amount: out.Entry.Amount}, nil
		}, nil
	case KindCommissions:
		if err := actor.Require(authz.SettleCommissions); err != nil {
			return nil, err
		}
		return func(ctx context.Context, id uint) (outcome, error) {
			out, err := o.commissions.SettleStatement(ctx, actor, id)
			if err != nil {
				return outcome{}, err
			}
			return outcome{ownerID: out.Statement.SellerID, direction: out.Entry.Direction, amount: out.Entry.Amount}, nil
		}, nil
	case KindWithdrawals:
		decision, err := domain.ParseDecision(sel.Decision)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, id uint) (outcome, error) {
			req, err := o.withdrawals.Decide(ctx, actor, id, string(decision), sel.Remark)
			if err != nil {
				return outcome{}, err
			}
			if req.Status == domain.WithdrawalApproved {
				return outcome{ownerID: req.PayeeID, direction: domain.DirectionDebit, amount: req.Amount}, nil
			}
			return outcome{ownerID: req.PayeeID, amount: decimal.Zero}, nil
		}, nil
	}
	return nil, domain.Validation(fmt.Sprintf("unknown batch kind %q", sel.Kind))
}

// resolve returns the explicit ids, deduplicated in order, or every eligible id.
// Explicit ids are not pre-filtered; stale items fail individually.
func (o *Orchestrator) resolve(ctx context.Context, sel Selector) ([]uint, error) {
	if len(sel.IDs) > 0 {
		seen := make(map[uint]struct{}, len(sel.IDs))
		ids := make([]uint, 0, len(sel.IDs))
		for _, id := range sel.IDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return ids, nil
	}
	switch sel.Kind {
	case KindEarnings:
		return o.payouts.Eligible(ctx, sel.OwnerID)
	case KindCommissions:
		return o.commissions.Eligible(ctx, sel.OwnerID)
	case KindWithdrawals:
		return o.withdrawals.Eligible(ctx, sel.OwnerID)
	}
	return nil, domain.Validation(fmt.Sprintf("unknown batch kind %q", sel.Kind))
}

func settleOne(ctx context.Context, run action, id uint) Item {
	if err := ctx.Err(); err != nil {
		return Item{ID: id, Kind: domain.KindInfrastructure, Reason: "batch canceled", Amount: decimal.Zero}
	}
	out, err := run(ctx, id)
	if err != nil {
		return Item{ID: id, Kind: domain.KindOf(err), Reason: reason(err), Amount: decimal.Zero}
	}
	return Item{ID: id, Success: true, OwnerID: out.ownerID, Direction: out.direction, Amount: out.amount}
}

func reason(err error) string {
	return domain.ResultOf(nil, err, "").Message
}

// Owners lists the distinct wallet owners touched by successful items.
func (r *Report) Owners() []uint {
	seen := make(map[uint]struct{})
	var owners []uint
	for _, it := range r.Items {
		if !it.Success || it.OwnerID == 0 {
			continue
		}
		if _, ok := seen[it.OwnerID]; ok {
			continue
		}
		seen[it.OwnerID] = struct{}{}
		owners = append(owners, it.OwnerID)
	}
	return owners
}

func collect(items []Item) *Report {
	r := &Report{
		Items:         items,
		Succeeded:     []uint{},
		Failed:        []Failure{},
		SettledAmount: decimal.Zero,
	}
	for _, it := range items {
		if it.Success {
			r.Succeeded = append(r.Succeeded, it.ID)
			r.SettledAmount = r.SettledAmount.Add(it.Amount)
			continue
		}
		r.Failed = append(r.Failed, Failure{ID: it.ID, Kind: it.Kind, Reason: it.Reason})
	}
	return r
}
