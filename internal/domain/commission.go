package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Exact money arithmetic
)

// SettlementStatus of a seller commission statement.
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementSettled SettlementStatus = "settled"
)

// CanTransitionTo allows only pending -> settled.
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	switch s {
	case SettlementPending:
		return next == SettlementSettled
	case SettlementSettled:
		return false
	}
	return false
}

// CommissionStatement Model
//
// A seller's earnings for one order, net of marketplace commission, waiting to be credited.
// Debit statements (returns, chargebacks) are charged against the seller's wallet instead.
type CommissionStatement struct {
	ID                      uint             `gorm:"primaryKey" json:"id"`                             // Primary key
	SellerID                uint             `gorm:"index;not null" json:"seller_id"`                  // Seller (user) being paid
	OrderID                 uint             `gorm:"index;not null" json:"order_id"`                   // Order the statement belongs to
	EntryType               Direction        `gorm:"size:8;not null;default:credit" json:"entry_type"` // credit pays the seller, debit charges them
	Amount                  decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"amount"`        // Positive magnitude
	Description             string           `gorm:"size:255" json:"description,omitempty"`            // Optional ledger description
	SettlementStatus        SettlementStatus `gorm:"size:16;index;not null" json:"settlement_status"`  // pending or settled
	SettledAt               *time.Time       `json:"settled_at,omitempty"`                             // When the wallet was credited or debited
	SettlementTransactionID *uint            `json:"settlement_transaction_id,omitempty"`              // Ledger entry id
	CreatedAt               time.Time        `json:"created_at"`                                       // Creation timestamp
	UpdatedAt               time.Time        `json:"updated_at"`                                       // Last update timestamp
}
