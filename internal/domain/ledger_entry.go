package domain

import (
	"fmt"  // Reference formatting
	"time" // Timestamps

	"github.com/shopspring/decimal" // Exact money arithmetic
)

// Direction of a ledger entry relative to the wallet.
type Direction string

const (
	DirectionCredit Direction = "credit" // Funds added to the wallet
	DirectionDebit  Direction = "debit"  // Funds removed from the wallet
)

// EntryMethod records which channel moved the funds.
type EntryMethod string

const (
	MethodSystem               EntryMethod = "system"
	MethodAdmin                EntryMethod = "admin"
	MethodGateway              EntryMethod = "gateway"
	MethodWithdrawal           EntryMethod = "withdrawal"
	MethodCommissionSettlement EntryMethod = "commission_settlement"
	MethodCommissionDebit      EntryMethod = "commission_debit_settlement"
)

// EntryStatus of a ledger entry.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
)

// LedgerEntry Model
//
// Append-only. Corrections are new offsetting entries, never edits.
type LedgerEntry struct {
	ID          uint            `gorm:"primaryKey" json:"id"`                      // Primary key
	WalletID    uint            `gorm:"index;not null" json:"wallet_id"`           // Wallet the entry belongs to
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"` // Positive magnitude
	Direction   Direction       `gorm:"size:8;not null" json:"direction"`          // credit or debit
	Method      EntryMethod     `gorm:"size:32;not null" json:"method"`            // Channel that moved the funds
	Status      EntryStatus     `gorm:"size:16;not null" json:"status"`            // Entry status
	Reference   string          `gorm:"size:64;index" json:"reference,omitempty"`  // Source entity, e.g. WDR-12
	Description string          `gorm:"size:255" json:"description"`               // Human readable description
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`    // Write timestamp
}

// References tie an entry back to the entity that caused it.
func EngagementRef(id uint) string     { return fmt.Sprintf("ENG-%d", id) }
func WithdrawalRef(id uint) string     { return fmt.Sprintf("WDR-%d", id) }
func StatementRef(id uint) string      { return fmt.Sprintf("STMT-%d", id) }
func StatementDebitRef(id uint) string { return fmt.Sprintf("STMT-DEBIT-%d", id) }
