// Package commission settles sellers' per-order statements: credits pay the seller,
// debits charge the seller's wallet.
package commission

import (
	"context" // Request scoped cancellation
	"errors"  // errors.Is for gorm sentinels
	"fmt"     // Message formatting
	"time"    // Settlement timestamps

	"settlement_ledger/internal/authz"  // Permission checks
	"settlement_ledger/internal/db"     // Atomic unit of work
	"settlement_ledger/internal/domain" // Importing domain models
	"settlement_ledger/internal/events" // Post-commit events
	"settlement_ledger/internal/ledger" // Wallet mutations
	"settlement_ledger/internal/lock"   // Per-entity locks

	"github.com/shopspring/decimal" // Exact money arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
	"gorm.io/gorm"                  // GORM ORM library
)

// StatementInput is a new statement handed over by order fulfillment.
type StatementInput struct {
	SellerID    uint             `json:"seller_id"`
	OrderID     uint             `json:"order_id"`
	EntryType   domain.Direction `json:"entry_type"` // credit when empty
	Amount      decimal.Decimal  `json:"amount"`
	Description string           `json:"description"`
}

// Settlement is the committed result of settling one statement.
type Settlement struct {
	Statement domain.CommissionStatement `json:"statement"`
	Entry     domain.LedgerEntry         `json:"entry"`
}

// Settler settles statements through the ledger store.
type Settler struct {
	store     *ledger.Store
	publisher events.Publisher
}

// NewSettler creates a settler posting through store.
func NewSettler(store *ledger.Store, publisher events.Publisher) *Settler {
	return &Settler{store: store, publisher: publisher}
}

// Record stores a pending statement.
func (s *Settler) Record(ctx context.Context, actor authz.Context, in StatementInput) (*domain.CommissionStatement, error) {
	if err := actor.Require(authz.RecordIntake); err != nil {
		return nil, err
	}
	if in.SellerID == 0 || in.OrderID == 0 {
		return nil, domain.Validation("seller and order are required")
	}
	if in.EntryType == "" {
		in.EntryType = domain.DirectionCredit
	}
	if in.EntryType != domain.DirectionCredit && in.EntryType != domain.DirectionDebit {
		return nil, domain.Validation("entry type must be credit or debit")
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	st := &domain.CommissionStatement{
		SellerID:         in.SellerID,
		OrderID:          in.OrderID,
		EntryType:        in.EntryType,
		Amount:           in.Amount,
		Description:      in.Description,
		SettlementStatus: domain.SettlementPending,
	}
	if err := s.store.DB().WithContext(ctx).Create(st).Error; err != nil {
		return nil, domain.Infrastructure("record commission statement", err)
	}
	logrus.WithFields(logrus.Fields{
		"statement_id": st.ID,
		"seller_id":    st.SellerID,
		"entry_type":   st.EntryType,
		"amount":       st.Amount.StringFixed(2),
		"actor_id":     actor.ActorID,
	}).Info("Commission statement recorded")
	return st, nil
}

// SettleStatement posts a pending statement to the seller's wallet and marks it settled.
// A debit the wallet cannot cover fails with insufficient funds and stays pending.
func (s *Settler) SettleStatement(ctx context.Context, actor authz.Context, statementID uint) (*Settlement, error) {
	if err := actor.Require(authz.SettleCommissions); err != nil {
		return nil, err
	}
	peek, err := s.Get(ctx, statementID)
	if err != nil {
		return nil, err
	}
	keys := []string{lock.StatementKey(statementID), lock.WalletKey(peek.SellerID)}
	out, err := db.Atomic(ctx, s.store.DB(), s.store.Locker(), keys, func(tx *gorm.DB) (*Settlement, error) {
		return s.settle(tx, statementID, peek.SellerID)
	})
	fields := logrus.Fields{
		"statement_id": statementID,
		"seller_id":    peek.SellerID,
		"actor_id":     actor.ActorID,
	}
	if err != nil {
		fields["error"] = err.Error()
		if domain.KindOf(err) == domain.KindInfrastructure {
			logrus.WithFields(fields).Error("Commission settlement failed")
		} else {
			logrus.WithFields(fields).Warn("Commission settlement rejected")
		}
		return nil, err
	}
	fields["entry_type"] = out.Statement.EntryType
	fields["amount"] = out.Entry.Amount.StringFixed(2)
	fields["entry_id"] = out.Entry.ID
	logrus.WithFields(fields).Info("Commission settled")

	eventType := events.CommissionSettled
	if out.Statement.EntryType == domain.DirectionDebit {
		eventType = events.CommissionDebited
	}
	events.Emit(ctx, s.publisher, events.New(eventType, peek.SellerID, statementID, out.Entry.Amount, out.Entry.Reference))
	return out, nil
}

func (s *Settler) settle(tx *gorm.DB, statementID, sellerID uint) (*Settlement, error) {
	var st domain.CommissionStatement
	if err := db.ForUpdate(tx).First(&st, statementID).Error; err != nil {
		return nil, err
	}
	if st.SellerID != sellerID {
		return nil, domain.NotEligible(fmt.Sprintf("statement #%d changed owner, retry", st.ID))
	}
	if !st.SettlementStatus.CanTransitionTo(domain.SettlementSettled) {
		return nil, domain.NotEligible(fmt.Sprintf("statement #%d is already %s", st.ID, st.SettlementStatus))
	}
	entry, err := post(s.store.WithTx(tx), &st)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res := tx.Model(&domain.CommissionStatement{}).
		Where("id = ? AND settlement_status = ?", st.ID, domain.SettlementPending).
		Updates(map[string]any{
			"settlement_status":         domain.SettlementSettled,
			"settled_at":                now,
			"settlement_transaction_id": entry.ID,
			"updated_at":                now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.NotEligible(fmt.Sprintf("statement #%d was settled concurrently", st.ID))
	}
	st.SettlementStatus = domain.SettlementSettled
	st.SettledAt = &now
	st.SettlementTransactionID = &entry.ID
	return &Settlement{Statement: st, Entry: *entry}, nil
}

// post credits or debits the seller according to the statement's entry type.
func post(lt *ledger.Tx, st *domain.CommissionStatement) (*domain.LedgerEntry, error) {
	if st.EntryType == domain.DirectionDebit {
		description := st.Description
		if description == "" {
			description = fmt.Sprintf("Debit settlement for order #%d", st.OrderID)
		}
		return lt.Debit(st.SellerID, st.Amount, ledger.Posting{
			Method:      domain.MethodCommissionDebit,
			Reference:   domain.StatementDebitRef(st.ID),
			Description: description,
		})
	}
	description := st.Description
	if description == "" {
		description = fmt.Sprintf("Commission settlement for order #%d", st.OrderID)
	}
	return lt.Credit(st.SellerID, st.Amount, ledger.Posting{
		Method:      domain.MethodCommissionSettlement,
		Reference:   domain.StatementRef(st.ID),
		Description: description,
	})
}

// Get loads one statement.
func (s *Settler) Get(ctx context.Context, statementID uint) (*domain.CommissionStatement, error) {
	var st domain.CommissionStatement
	err := s.store.DB().WithContext(ctx).First(&st, statementID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound(fmt.Sprintf("statement #%d not found", statementID))
	}
	if err != nil {
		return nil, domain.Infrastructure("load commission statement", err)
	}
	return &st, nil
}

// Eligible lists the ids of pending statements, optionally for one seller.
func (s *Settler) Eligible(ctx context.Context, sellerID uint) ([]uint, error) {
	q := s.store.DB().WithContext(ctx).Model(&domain.CommissionStatement{}).
		Where("settlement_status = ?", domain.SettlementPending)
	if sellerID != 0 {
		q = q.Where("seller_id = ?", sellerID)
	}
	var ids []uint
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, domain.Infrastructure("list pending statements", err)
	}
	return ids, nil
}
