package db

import (
	"context" // Request scoped cancellation
	"errors"  // Error classification

	"settlement_ledger/internal/domain" // Domain errors
	"settlement_ledger/internal/lock"   // Per-entity locks

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
	"gorm.io/gorm/clause"        // SQL clause builders
)

// Atomic runs fn as one unit of work. The entity keys are locked first, then fn runs
// inside a database transaction. Either fn's value is returned with its effects committed,
// or an error is returned and none of its effects are visible.
//
// Errors returned by fn that are already *domain.Error pass through unchanged; anything
// else is reported as an infrastructure failure.
func Atomic[T any](ctx context.Context, gdb *gorm.DB, locker lock.Locker, keys []string, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var zero T
	release, err := locker.Acquire(ctx, keys...)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			logrus.WithFields(logrus.Fields{"keys": keys}).Warn("Lock acquisition timed out")
			return zero, domain.LockTimeout(err)
		}
		return zero, classify("acquire lock", keys, err)
	}
	defer release()

	var out T
	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := fn(tx)
		if err != nil {
			return err // Return error to rollback
		}
		out = v
		return nil // Commit transaction
	})
	if err != nil {
		return zero, classify("ledger transaction", keys, err)
	}
	return out, nil
}

func classify(op string, keys []string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"keys":  keys,
		"error": err.Error(),
	}).Error("Unit of work rolled back")
	return domain.Infrastructure(op, err)
}

// ForUpdate adds a row lock to the next query. SQLite dialects drop the clause.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}
