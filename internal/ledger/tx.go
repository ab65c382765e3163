package ledger

import (
	"errors" // errors.Is for gorm sentinels
	"fmt"    // Message formatting
	"time"   // Update timestamps

	"settlement_ledger/internal/db"     // Row locking helpers
	"settlement_ledger/internal/domain" // Importing domain models

	"github.com/shopspring/decimal" // Exact money arithmetic
	"gorm.io/gorm"                  // GORM ORM library
	"gorm.io/gorm/clause"           // Upsert clauses
)

// Posting describes the ledger entry written alongside a balance change.
type Posting struct {
	Method      domain.EntryMethod // Channel that moved the funds
	Reference   string             // Source entity, e.g. ENG-7
	Description string             // Human readable description
}

// Tx applies ledger mutations inside a caller-owned transaction. The caller must hold
// the wallet lock for every owner it touches.
type Tx struct {
	tx       *gorm.DB
	currency string
}

// Wallet reads the owner's wallet with a row lock, creating a zero wallet on first use.
func (t *Tx) Wallet(ownerID uint) (*domain.Wallet, error) {
	return loadWallet(t.tx, ownerID, t.currency, true)
}

// Credit adds amount to the available balance and writes one credit entry.
func (t *Tx) Credit(ownerID uint, amount decimal.Decimal, p Posting) (*domain.LedgerEntry, error) {
	if err := checkPosting(amount, p); err != nil {
		return nil, err
	}
	w, err := t.Wallet(ownerID)
	if err != nil {
		return nil, err
	}
	if err := t.setBalances(w, w.AvailableBalance.Add(amount), w.BlockedBalance); err != nil {
		return nil, err
	}
	return t.writeEntry(w, amount, domain.DirectionCredit, p)
}

// Debit removes amount from the available balance and writes one debit entry.
func (t *Tx) Debit(ownerID uint, amount decimal.Decimal, p Posting) (*domain.LedgerEntry, error) {
	if err := checkPosting(amount, p); err != nil {
		return nil, err
	}
	w, err := t.Wallet(ownerID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(w.AvailableBalance) {
		return nil, insufficient(amount, w.AvailableBalance)
	}
	if err := t.setBalances(w, w.AvailableBalance.Sub(amount), w.BlockedBalance); err != nil {
		return nil, err
	}
	return t.writeEntry(w, amount, domain.DirectionDebit, p)
}

// Block moves amount from available to blocked. Equity is unchanged, so no entry is written.
func (t *Tx) Block(ownerID uint, amount decimal.Decimal) (*domain.Wallet, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	w, err := t.Wallet(ownerID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(w.AvailableBalance) {
		return nil, insufficient(amount, w.AvailableBalance)
	}
	if err := t.setBalances(w, w.AvailableBalance.Sub(amount), w.BlockedBalance.Add(amount)); err != nil {
		return nil, err
	}
	return w, nil
}

// Release moves a previously blocked amount back to available.
func (t *Tx) Release(ownerID uint, amount decimal.Decimal) (*domain.Wallet, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	w, err := t.Wallet(ownerID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(w.BlockedBalance) {
		return nil, domain.InsufficientFunds(fmt.Sprintf("cannot release %s, only %s is blocked",
			amount.StringFixed(2), w.BlockedBalance.StringFixed(2)))
	}
	if err := t.setBalances(w, w.AvailableBalance.Add(amount), w.BlockedBalance.Sub(amount)); err != nil {
		return nil, err
	}
	return w, nil
}

// SettleBlock consumes amount from the blocked balance and writes one debit entry.
// The available balance is not touched.
func (t *Tx) SettleBlock(ownerID uint, amount decimal.Decimal, p Posting) (*domain.LedgerEntry, error) {
	if err := checkPosting(amount, p); err != nil {
		return nil, err
	}
	w, err := t.Wallet(ownerID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(w.BlockedBalance) {
		return nil, domain.InsufficientFunds(fmt.Sprintf("cannot settle %s, only %s is blocked",
			amount.StringFixed(2), w.BlockedBalance.StringFixed(2)))
	}
	if err := t.setBalances(w, w.AvailableBalance, w.BlockedBalance.Sub(amount)); err != nil {
		return nil, err
	}
	return t.writeEntry(w, amount, domain.DirectionDebit, p)
}

func (t *Tx) setBalances(w *domain.Wallet, available, blocked decimal.Decimal) error {
	if available.IsNegative() || blocked.IsNegative() {
		return domain.InsufficientFunds("balance cannot go negative")
	}
	now := time.Now()
	err := t.tx.Model(&domain.Wallet{}).Where("id = ?", w.ID).Updates(map[string]any{
		"available_balance": available,
		"blocked_balance":   blocked,
		"updated_at":        now,
	}).Error
	if err != nil {
		return err
	}
	w.AvailableBalance, w.BlockedBalance, w.UpdatedAt = available, blocked, now
	return nil
}

func (t *Tx) writeEntry(w *domain.Wallet, amount decimal.Decimal, dir domain.Direction, p Posting) (*domain.LedgerEntry, error) {
	entry := &domain.LedgerEntry{
		WalletID:    w.ID,
		Amount:      amount,
		Direction:   dir,
		Method:      p.Method,
		Status:      domain.EntryStatusCompleted,
		Reference:   p.Reference,
		Description: p.Description,
	}
	if err := t.tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// loadWallet finds the owner's wallet, inserting a zero wallet when none exists.
// Concurrent first reads race on the unique owner index; the loser's insert is a no-op.
func loadWallet(tx *gorm.DB, ownerID uint, currency string, forUpdate bool) (*domain.Wallet, error) {
	if ownerID == 0 {
		return nil, domain.Validation("wallet owner is required")
	}
	find := func() (*domain.Wallet, error) {
		q := tx
		if forUpdate {
			q = db.ForUpdate(tx)
		}
		var w domain.Wallet
		if err := q.Where("owner_id = ?", ownerID).First(&w).Error; err != nil {
			return nil, err
		}
		return &w, nil
	}
	w, err := find()
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	fresh := &domain.Wallet{
		OwnerID:          ownerID,
		AvailableBalance: decimal.Zero,
		BlockedBalance:   decimal.Zero,
		Currency:         currency,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh).Error; err != nil {
		return nil, err
	}
	return find()
}

func checkPosting(amount decimal.Decimal, p Posting) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	if p.Method == "" {
		return domain.Validation("ledger entry method is required")
	}
	return nil
}

func insufficient(amount, available decimal.Decimal) error {
	return domain.InsufficientFunds(fmt.Sprintf("requested %s exceeds available balance %s",
		amount.StringFixed(2), available.StringFixed(2)))
}
