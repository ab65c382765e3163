// Package ledger owns wallet balances and the append-only entry log.
//
// Wallets are addressed by owner id; each payee has exactly one. Every method on Store is
// its own unit of work. Workflows that change a wallet together with other rows use WithTx
// inside db.Atomic and hold the wallet lock themselves.
package ledger

import (
	"context" // Request scoped cancellation
	"errors"  // errors.As for domain errors

	"settlement_ledger/internal/db"     // Atomic unit of work
	"settlement_ledger/internal/domain" // Importing domain models
	"settlement_ledger/internal/lock"   // Per-wallet locks

	"github.com/shopspring/decimal" // Exact money arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
	"gorm.io/gorm"                  // GORM ORM library
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store is the wallet balance and transaction log.
type Store struct {
	db       *gorm.DB
	locker   lock.Locker
	currency string
}

// NewStore creates a store writing wallets in the given currency.
func NewStore(gdb *gorm.DB, locker lock.Locker, currency string) *Store {
	if currency == "" {
		currency = "USD"
	}
	return &Store{db: gdb, locker: locker, currency: currency}
}

// DB exposes the underlying connection to workflows composing their own units of work.
func (s *Store) DB() *gorm.DB { return s.db }

// Locker exposes the entity locker shared by every workflow on this store.
func (s *Store) Locker() lock.Locker { return s.locker }

// WithTx binds ledger mutations to tx.
func (s *Store) WithTx(tx *gorm.DB) *Tx {
	return &Tx{tx: tx, currency: s.currency}
}

// Credit adds amount to the owner's available balance and writes one credit entry.
func (s *Store) Credit(ctx context.Context, ownerID uint, amount decimal.Decimal, p Posting) (*domain.LedgerEntry, error) {
	entry, err := db.Atomic(ctx, s.db, s.locker, []string{lock.WalletKey(ownerID)}, func(tx *gorm.DB) (*domain.LedgerEntry, error) {
		return s.WithTx(tx).Credit(ownerID, amount, p)
	})
	s.logMutation("credit", ownerID, amount, entry, err)
	return entry, err
}

// Debit removes amount from the owner's available balance and writes one debit entry.
func (s *Store) Debit(ctx context.Context, ownerID uint, amount decimal.Decimal, p Posting) (*domain.LedgerEntry, error) {
	entry, err := db.Atomic(ctx, s.db, s.locker, []string{lock.WalletKey(ownerID)}, func(tx *gorm.DB) (*domain.LedgerEntry, error) {
		return s.WithTx(tx).Debit(ownerID, amount, p)
	})
	s.logMutation("debit", ownerID, amount, entry, err)
	return entry, err
}

// Block moves amount from available to blocked without writing an entry.
func (s *Store) Block(ctx context.Context, ownerID uint, amount decimal.Decimal) (*domain.Wallet, error) {
	w, err := db.Atomic(ctx, s.db, s.locker, []string{lock.WalletKey(ownerID)}, func(tx *gorm.DB) (*domain.Wallet, error) {
		return s.WithTx(tx).Block(ownerID, amount)
	})
	s.logMutation("block", ownerID, amount, nil, err)
	return w, err
}

// Release moves a blocked amount back to available without writing an entry.
func (s *Store) Release(ctx context.Context, ownerID uint, amount decimal.Decimal) (*domain.Wallet, error) {
	w, err := db.Atomic(ctx, s.db, s.locker, []string{lock.WalletKey(ownerID)}, func(tx *gorm.DB) (*domain.Wallet, error) {
		return s.WithTx(tx).Release(ownerID, amount)
	})
	s.logMutation("release", ownerID, amount, nil, err)
	return w, err
}

// SettleBlock consumes a blocked amount and writes one debit entry.
func (s *Store) SettleBlock(ctx context.Context, ownerID uint, amount decimal.Decimal, p Posting) (*domain.LedgerEntry, error) {
	entry, err := db.Atomic(ctx, s.db, s.locker, []string{lock.WalletKey(ownerID)}, func(tx *gorm.DB) (*domain.LedgerEntry, error) {
		return s.WithTx(tx).SettleBlock(ownerID, amount, p)
	})
	s.logMutation("settle_block", ownerID, amount, entry, err)
	return entry, err
}

// Get returns the owner's wallet, creating a zero wallet on first read.
func (s *Store) Get(ctx context.Context, ownerID uint) (*domain.Wallet, error) {
	w, err := loadWallet(s.db.WithContext(ctx), ownerID, s.currency, false)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, domain.Infrastructure("load wallet", err)
	}
	return w, nil
}

// Page is one page of ledger entries, newest first.
type Page struct {
	Items    []domain.LedgerEntry `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// History lists the owner's entries newest first. Pages are 1-based.
func (s *Store) History(ctx context.Context, ownerID uint, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	out := &Page{Items: []domain.LedgerEntry{}, Page: page, PageSize: pageSize}
	walletIDs := s.db.WithContext(ctx).Model(&domain.Wallet{}).Select("id").Where("owner_id = ?", ownerID)
	q := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("wallet_id IN (?)", walletIDs).
		Session(&gorm.Session{})
	if err := q.Count(&out.Total).Error; err != nil {
		return nil, domain.Infrastructure("count ledger entries", err)
	}
	err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&out.Items).Error
	if err != nil {
		return nil, domain.Infrastructure("list ledger entries", err)
	}
	return out, nil
}

func (s *Store) logMutation(op string, ownerID uint, amount decimal.Decimal, entry *domain.LedgerEntry, err error) {
	fields := logrus.Fields{
		"op":       op,
		"owner_id": ownerID,
		"amount":   amount.StringFixed(2),
	}
	if err != nil {
		fields["error"] = err.Error()
		if domain.KindOf(err) == domain.KindInfrastructure {
			logrus.WithFields(fields).Error("Ledger mutation failed")
			return
		}
		logrus.WithFields(fields).Warn("Ledger mutation rejected")
		return
	}
	if entry != nil {
		fields["entry_id"] = entry.ID
	}
	logrus.WithFields(fields).Debug("Ledger mutation committed")
}
