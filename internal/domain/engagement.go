package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Exact money arithmetic
)

// EngagementStatus is the lifecycle of the delivery itself.
type EngagementStatus string

const (
	EngagementAssigned   EngagementStatus = "assigned"
	EngagementInProgress EngagementStatus = "in_progress"
	EngagementCompleted  EngagementStatus = "completed"
	EngagementCanceled   EngagementStatus = "canceled"
)

// Valid reports whether s is a known engagement status.
func (s EngagementStatus) Valid() bool {
	switch s {
	case EngagementAssigned, EngagementInProgress, EngagementCompleted, EngagementCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further delivery transitions are allowed.
func (s EngagementStatus) Terminal() bool {
	return s == EngagementCompleted || s == EngagementCanceled
}

// CODSubmissionStatus tracks how much collected cash was handed back.
type CODSubmissionStatus string

const (
	CODPending            CODSubmissionStatus = "pending"
	CODPartiallySubmitted CODSubmissionStatus = "partially_submitted"
	CODSubmitted          CODSubmissionStatus = "submitted"
)

// AcceptsSubmission reports whether more cash may be submitted.
func (s CODSubmissionStatus) AcceptsSubmission() bool {
	switch s {
	case CODPending, CODPartiallySubmitted:
		return true
	case CODSubmitted:
		return false
	}
	return false
}

// CanTransitionTo enforces pending -> partially_submitted -> submitted, never backwards.
func (s CODSubmissionStatus) CanTransitionTo(next CODSubmissionStatus) bool {
	switch s {
	case CODPending:
		return next == CODPartiallySubmitted || next == CODSubmitted
	case CODPartiallySubmitted:
		return next == CODPartiallySubmitted || next == CODSubmitted
	case CODSubmitted:
		return false
	}
	return false
}

// NextCODSubmissionStatus derives the status for a new submitted total.
func NextCODSubmissionStatus(submitted, collected decimal.Decimal) CODSubmissionStatus {
	if submitted.GreaterThanOrEqual(collected) {
		return CODSubmitted
	}
	return CODPartiallySubmitted
}

// PaymentStatus of the agent's earnings for an engagement. One-way.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// CanTransitionTo allows only pending -> paid.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentPaid
	case PaymentPaid:
		return false
	}
	return false
}

// DeliveryEngagement Model
//
// One per (order, delivery agent) pairing. Status, CODCollected and TotalEarnings are
// supplied by order fulfillment; the submission and payment fields are owned here.
type DeliveryEngagement struct {
	ID                      uint                `gorm:"primaryKey" json:"id"`                                                           // Primary key
	OrderID                 uint                `gorm:"uniqueIndex:idx_engagement_order_agent;not null" json:"order_id"`                // Order being delivered
	DeliveryAgentID         uint                `gorm:"uniqueIndex:idx_engagement_order_agent;index;not null" json:"delivery_agent_id"` // Agent (user) doing the delivery
	Status                  EngagementStatus    `gorm:"size:16;index;not null" json:"status"`                                           // Delivery lifecycle
	CODCollected            decimal.Decimal     `gorm:"type:decimal(20,2);not null;default:0" json:"cod_collected"`                     // Cash taken from the customer
	CODSubmitted            decimal.Decimal     `gorm:"type:decimal(20,2);not null;default:0" json:"cod_submitted"`                     // Cash handed back so far
	CODSubmissionStatus     CODSubmissionStatus `gorm:"size:24;index;not null" json:"cod_submission_status"`                            // Reconciliation progress
	TotalEarnings           decimal.Decimal     `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings"`                    // Agent fee for the delivery
	PaymentStatus           PaymentStatus       `gorm:"size:16;index;not null" json:"payment_status"`                                   // Earnings payout status
	PaidAt                  *time.Time          `json:"paid_at,omitempty"`                                                              // When earnings were paid
	SettlementTransactionID *uint               `json:"settlement_transaction_id,omitempty"`                                            // Ledger entry of the payout
	CreatedAt               time.Time           `json:"created_at"`                                                                     // Creation timestamp
	UpdatedAt               time.Time           `json:"updated_at"`                                                                     // Last update timestamp
}

// CODRemaining is the cash still owed back by the agent.
func (e DeliveryEngagement) CODRemaining() decimal.Decimal {
	return e.CODCollected.Sub(e.CODSubmitted)
}

// CashSubmissionEvent Model
//
// Append-only record of one cash hand-back. The events of an engagement sum to its CODSubmitted.
type CashSubmissionEvent struct {
	ID           uint            `gorm:"primaryKey" json:"id"`                      // Primary key
	EngagementID uint            `gorm:"index;not null" json:"engagement_id"`       // Parent engagement
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"` // Cash handed back
	OccurredAt   time.Time       `gorm:"not null" json:"occurred_at"`               // When it was handed back
}
