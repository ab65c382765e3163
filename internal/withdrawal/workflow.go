// Package withdrawal moves payee funds out of the ledger through a pending -> decided workflow.
//
// Requesting blocks the amount in the payee's wallet. Approval consumes the block with one
// debit entry; rejection returns it to the available balance.
package withdrawal

import (
	"context" // Request scoped cancellation
	"errors"  // errors.Is for gorm sentinels
	"fmt"     // Message formatting
	"time"    // Decision timestamps

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

// CreateInput is a payee's ask to withdraw funds.
type CreateInput struct {
	PayeeID   uint             `json:"payee_id"`
	PayeeType domain.PayeeType `json:"payee_type"`
	Amount    decimal.Decimal  `json:"amount"`
	Note      string           `json:"note"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	PayeeID  uint
	Status   domain.WithdrawalStatus
	Page     int
	PageSize int
}

// Workflow creates and decides withdrawal requests.
type Workflow struct {
	store     *ledger.Store
	publisher events.Publisher
}

// NewWorkflow creates a workflow holding funds through store.
func NewWorkflow(store *ledger.Store, publisher events.Publisher) *Workflow {
	return &Workflow{store: store, publisher: publisher}
}

// CreateRequest blocks the amount in the payee's wallet and opens a pending request.
func (w *Workflow) CreateRequest(ctx context.Context, actor authz.Context, in CreateInput) (*domain.WithdrawalRequest, error) {
	if in.PayeeID == 0 {
		return nil, domain.Validation("payee is required")
	}
	if !actor.ActsFor(in.PayeeID) {
		return nil, domain.Forbidden("cannot request a withdrawal for another payee")
	}
	if !in.PayeeType.Valid() {
		return nil, domain.Validation("payee type must be seller or delivery_agent")
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	keys := []string{lock.WalletKey(in.PayeeID)}
	req, err := db.Atomic(ctx, w.store.DB(), w.store.Locker(), keys, func(tx *gorm.DB) (*domain.WithdrawalRequest, error) {
		if _, err := w.store.WithTx(tx).Block(in.PayeeID, in.Amount); err != nil {
			return nil, err
		}
		req := &domain.WithdrawalRequest{
			PayeeID:     in.PayeeID,
			PayeeType:   in.PayeeType,
			Amount:      in.Amount,
			Status:      domain.WithdrawalPending,
			RequestNote: in.Note,
		}
		if err := tx.Create(req).Error; err != nil {
			return nil, err
		}
		return req, nil
	})
	fields := logrus.Fields{
		"payee_id": in.PayeeID,
		"amount":   in.Amount.StringFixed(2),
	}
	if err != nil {
		logOutcome(fields, err, "Withdrawal request")
		return nil, err
	}
	fields["request_id"] = req.ID
	logrus.WithFields(fields).Info("Withdrawal requested")

	events.Emit(ctx, w.publisher, events.New(events.WithdrawalRequested, req.PayeeID, req.ID, req.Amount, domain.WithdrawalRef(req.ID)))
	return req, nil
}

// Decide approves or rejects a pending request. Only one decision ever commits per request.
func (w *Workflow) Decide(ctx context.Context, actor authz.Context, requestID uint, decision, remark string) (*domain.WithdrawalRequest, error) {
	next, err := domain.ParseDecision(decision)
	if err != nil {
		return nil, err
	}
	peek, err := w.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := actor.Require(authz.WithdrawalPermission(peek.PayeeType)); err != nil {
		return nil, err
	}
	keys := []string{lock.WithdrawalKey(requestID), lock.WalletKey(peek.PayeeID)}
	req, err := db.Atomic(ctx, w.store.DB(), w.store.Locker(), keys, func(tx *gorm.DB) (*domain.WithdrawalRequest, error) {
		return w.decide(tx, actor, requestID, next, remark)
	})
	fields := logrus.Fields{
		"request_id": requestID,
		"payee_id":   peek.PayeeID,
		"decision":   next,
		"actor_id":   actor.ActorID,
	}
	if err != nil {
		logOutcome(fields, err, "Withdrawal decision")
		return nil, err
	}
	fields["amount"] = req.Amount.StringFixed(2)
	if req.SettlementTransactionID != nil {
		fields["entry_id"] = *req.SettlementTransactionID
	}
	logrus.WithFields(fields).Info("Withdrawal decided")

	eventType := events.WithdrawalRejected
	if next == domain.WithdrawalApproved {
		eventType = events.WithdrawalApproved
	}
	events.Emit(ctx, w.publisher, events.New(eventType, req.PayeeID, req.ID, req.Amount, domain.WithdrawalRef(req.ID)))
	return req, nil
}

func (w *Workflow) decide(tx *gorm.DB, actor authz.Context, requestID uint, next domain.WithdrawalStatus, remark string) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	if err := db.ForUpdate(tx).First(&req, requestID).Error; err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(next) {
		return nil, domain.AlreadyProcessed(fmt.Sprintf("withdrawal request #%d is already %s", req.ID, req.Status))
	}

	ltx := w.store.WithTx(tx)
	var entryID *uint
	switch next {
	case domain.WithdrawalApproved:
		entry, err := ltx.SettleBlock(req.PayeeID, req.Amount, ledger.Posting{
			Method:      domain.MethodWithdrawal,
			Reference:   domain.WithdrawalRef(req.ID),
			Description: approvalDescription(req),
		})
		if err != nil {
			return nil, err
		}
		entryID = &entry.ID
	case domain.WithdrawalRejected:
		if _, err := ltx.Release(req.PayeeID, req.Amount); err != nil {
			return nil, err
		}
	case domain.WithdrawalPending:
		return nil, domain.Validation("decision must be approved or rejected")
	}

	now := time.Now()
	processedBy := actor.ActorID
	res := tx.Model(&domain.WithdrawalRequest{}).
		Where("id = ? AND status = ?", req.ID, domain.WithdrawalPending).
		Updates(map[string]any{
			"status":                    next,
			"admin_remark":              remark,
			"processed_at":              now,
			"processed_by":              processedBy,
			"settlement_transaction_id": entryID,
			"updated_at":                now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.AlreadyProcessed(fmt.Sprintf("withdrawal request #%d was processed concurrently", req.ID))
	}
	req.Status = next
	req.AdminRemark = remark
	req.ProcessedAt = &now
	req.ProcessedBy = &processedBy
	req.SettlementTransactionID = entryID
	return &req, nil
}

func approvalDescription(req domain.WithdrawalRequest) string {
	who := "Seller"
	if req.PayeeType == domain.PayeeDeliveryAgent {
		who = "Delivery agent"
	}
	return fmt.Sprintf("%s withdrawal request #%d approved", who, req.ID)
}

// Get loads one request.
func (w *Workflow) Get(ctx context.Context, requestID uint) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	err := w.store.DB().WithContext(ctx).First(&req, requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFound(fmt.Sprintf("withdrawal request #%d not found", requestID))
	}
	if err != nil {
		return nil, domain.Infrastructure("load withdrawal request", err)
	}
	return &req, nil
}

// List returns requests matching f, newest first.
func (w *Workflow) List(ctx context.Context, f Filter) ([]domain.WithdrawalRequest, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	q := w.store.DB().WithContext(ctx).Model(&domain.WithdrawalRequest{})
	if f.PayeeID != 0 {
		q = q.Where("payee_id = ?", f.PayeeID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	out := []domain.WithdrawalRequest{}
	err := q.Order("id DESC").Offset((f.Page - 1) * f.PageSize).Limit(f.PageSize).Find(&out).Error
	if err != nil {
		return nil, domain.Infrastructure("list withdrawal requests", err)
	}
	return out, nil
}

// Eligible lists the ids of pending requests, optionally for one payee, oldest first.
func (w *Workflow) Eligible(ctx context.Context, payeeID uint) ([]uint, error) {
	q := w.store.DB().WithContext(ctx).Model(&domain.WithdrawalRequest{}).
		Where("status = ?", domain.WithdrawalPending)
	if payeeID != 0 {
		q = q.Where("payee_id = ?", payeeID)
	}
	var ids []uint
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, domain.Infrastructure("list pending withdrawals", err)
	}
	return ids, nil
}

func logOutcome(fields logrus.Fields, err error, what string) {
	fields["error"] = err.Error()
	if domain.KindOf(err) == domain.KindInfrastructure {
		logrus.WithFields(fields).Error(what + " failed")
		return
	}
	logrus.WithFields(fields).Warn(what + " rejected")
}
