package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Exact money arithmetic
)

// Wallet Model
//
// One wallet per payee. AvailableBalance is spendable; BlockedBalance is earmarked
// for pending withdrawals. Both are never negative.
type Wallet struct {
	ID               uint            `gorm:"primaryKey" json:"id"`                                           // Primary key
	OwnerID          uint            `gorm:"uniqueIndex;not null" json:"owner_id"`                           // Payee (user) owning the wallet
	AvailableBalance decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"available_balance"` // Spendable funds
	BlockedBalance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"blocked_balance"`   // Funds held for pending withdrawals
	Currency         string          `gorm:"size:8;not null" json:"currency"`                                // Single ledger currency
	CreatedAt        time.Time       `json:"created_at"`                                                     // Creation timestamp
	UpdatedAt        time.Time       `json:"updated_at"`                                                     // Last mutation timestamp
}

// Equity is the payee's total funds, spendable or not.
func (w Wallet) Equity() decimal.Decimal {
	return w.AvailableBalance.Add(w.BlockedBalance)
}
