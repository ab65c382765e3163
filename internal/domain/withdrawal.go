package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Exact money arithmetic
)

// WithdrawalStatus is the request state machine: pending -> approved | rejected.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// Terminal reports whether the request has been decided.
func (s WithdrawalStatus) Terminal() bool {
	switch s {
	case WithdrawalApproved, WithdrawalRejected:
		return true
	case WithdrawalPending:
		return false
	}
	return false
}

// CanTransitionTo allows exactly one move out of pending.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	switch s {
	case WithdrawalPending:
		return next == WithdrawalApproved || next == WithdrawalRejected
	case WithdrawalApproved, WithdrawalRejected:
		return false
	}
	return false
}

// ParseDecision accepts only the two terminal statuses.
func ParseDecision(s string) (WithdrawalStatus, error) {
	switch WithdrawalStatus(s) {
	case WithdrawalApproved:
		return WithdrawalApproved, nil
	case WithdrawalRejected:
		return WithdrawalRejected, nil
	}
	return "", Validation("decision must be approved or rejected")
}

// PayeeType distinguishes the two classes of wallet owners.
type PayeeType string

const (
	PayeeSeller        PayeeType = "seller"
	PayeeDeliveryAgent PayeeType = "delivery_agent"
)

// Valid reports whether t is a known payee type.
func (t PayeeType) Valid() bool {
	return t == PayeeSeller || t == PayeeDeliveryAgent
}

// WithdrawalRequest Model
type WithdrawalRequest struct {
	ID                      uint             `gorm:"primaryKey" json:"id"`                      // Primary key
	PayeeID                 uint             `gorm:"index;not null" json:"payee_id"`            // Wallet owner asking for funds
	PayeeType               PayeeType        `gorm:"size:16;not null" json:"payee_type"`        // seller or delivery_agent
	Amount                  decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"amount"` // Requested (and blocked) amount
	Status                  WithdrawalStatus `gorm:"size:16;index;not null" json:"status"`      // pending, approved, rejected
	RequestNote             string           `gorm:"size:255" json:"request_note,omitempty"`    // Payee note
	AdminRemark             string           `gorm:"size:255" json:"admin_remark,omitempty"`    // Decision remark
	ProcessedAt             *time.Time       `json:"processed_at,omitempty"`                    // Decision timestamp
	ProcessedBy             *uint            `json:"processed_by,omitempty"`                    // Deciding actor
	SettlementTransactionID *uint            `json:"settlement_transaction_id,omitempty"`       // Debit entry when approved
	CreatedAt               time.Time        `json:"created_at"`                                // Creation timestamp
	UpdatedAt               time.Time        `json:"updated_at"`                                // Last update timestamp
}
