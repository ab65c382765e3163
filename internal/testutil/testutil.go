// Package testutil builds throwaway databases and lockers for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"settlement_ledger/internal/db"
	"settlement_ledger/internal/domain"
	"settlement_ledger/internal/lock"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps SQLite from reporting busy errors under concurrent tests.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// NewLocker returns an in-process locker with a generous timeout.
func NewLocker() lock.Locker {
	return lock.NewLocalLocker(5 * time.Second)
}

// D parses a decimal literal, panicking on bad input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// SeedWallet creates a wallet with the given balances.
func SeedWallet(t testing.TB, gdb *gorm.DB, ownerID uint, available, blocked string) *domain.Wallet {
	t.Helper()
	w := &domain.Wallet{
		OwnerID:          ownerID,
		AvailableBalance: D(available),
		BlockedBalance:   D(blocked),
		Currency:         "USD",
	}
	require.NoError(t, gdb.Create(w).Error)
	return w
}

// FailInserts makes every insert into table fail until the test ends.
func FailInserts(t testing.TB, gdb *gorm.DB, table string) {
	t.Helper()
	name := "testutil:fail_" + table + "_" + uuid.NewString()
	err := gdb.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			_ = tx.AddError(fmt.Errorf("injected failure writing %s", table))
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gdb.Callback().Create().Remove(name) })
}

// AssertMoney compares a decimal against a literal by value, ignoring scale.
func AssertMoney(t testing.TB, want string, got decimal.Decimal) bool {
	t.Helper()
	return assert.Truef(t, D(want).Equal(got), "want %s, got %s", want, got.String())
}

// Wallet reloads the owner's wallet.
func Wallet(t testing.TB, gdb *gorm.DB, ownerID uint) domain.Wallet {
	t.Helper()
	var w domain.Wallet
	require.NoError(t, gdb.Where("owner_id = ?", ownerID).First(&w).Error)
	return w
}

// Entries loads every ledger entry of the owner's wallet, oldest first.
func Entries(t testing.TB, gdb *gorm.DB, ownerID uint) []domain.LedgerEntry {
	t.Helper()
	var entries []domain.LedgerEntry
	err := gdb.Where("wallet_id IN (?)", gdb.Model(&domain.Wallet{}).Select("id").Where("owner_id = ?", ownerID)).
		Order("id").Find(&entries).Error
	require.NoError(t, err)
	return entries
}

var seq atomic.Uint32

// NextID returns a process-unique id for seeding natural keys such as order ids.
func NextID() uint {
	return uint(seq.Add(1)) + 1000
}
