// Package cash reconciles cash collected on delivery against cash handed back by the agent.
package cash

import (
	"context" // Request scoped cancellation
	"errors"  // errors.Is for gorm sentinels
	"fmt"     // Message formatting
	"time"    // Event timestamps

	"settlement_ledger/internal/authz"  // Permission checks
	"settlement_ledger/internal/db"     // Atomic unit of work
	"settlement_ledger/internal/domain" // Importing domain models
	"settlement_ledger/internal/events" // Post-commit events
	"settlement_ledger/internal/lock"   // Per-entity locks

	"github.com/shopspring/decimal" // Exact money arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
	"gorm.io/gorm"                  // GORM ORM library
)

// Engine applies cash submissions to delivery engagements. It never touches wallets.
type Engine struct {
	db        *gorm.DB
	locker    lock.Locker
	publisher events.Publisher
}

// NewEngine creates an engine that locks engagements through locker and publishes to publisher.
func NewEngine(gdb *gorm.DB, locker lock.Locker, publisher events.Publisher) *Engine {
	return &Engine{db: gdb, locker: locker, publisher: publisher}
}

// SubmitCash records amount handed back for the engagement and advances its submission status.
func (e *Engine) SubmitCash(ctx context.Context, actor authz.Context, engagementID uint, amount decimal.Decimal) (*domain.DeliveryEngagement, error) {
	if err := actor.Require(authz.ProcessCash); err != nil {
		return nil, err
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	keys := []string{lock.EngagementKey(engagementID)}
	eng, err := db.Atomic(ctx, e.db, e.locker, keys, func(tx *gorm.DB) (*domain.DeliveryEngagement, error) {
		return submit(tx, engagementID, amount)
	})
	fields := logrus.Fields{
		"engagement_id": engagementID,
		"amount":        amount.StringFixed(2),
		"actor_id":      actor.ActorID,
	}
	if err != nil {
		fields["error"] = err.Error()
		if domain.KindOf(err) == domain.KindInfrastructure {
			logrus.WithFields(fields).Error("Cash submission failed")
		} else {
			logrus.WithFields(fields).Warn("Cash submission rejected")
		}
		return nil, err
	}
	fields["cod_submitted"] = eng.CODSubmitted.StringFixed(2)
	fields["cod_submission_status"] = eng.CODSubmissionStatus
	logrus.WithFields(fields).Info("Cash submitted")

	events.Emit(ctx, e.publisher, events.New(events.CashSubmitted, eng.DeliveryAgentID, eng.ID, amount, domain.EngagementRef(eng.ID)))
	return eng, nil
}

func submit(tx *gorm.DB, engagementID uint, amount decimal.Decimal) (*domain.DeliveryEngagement, error) {
	var eng domain.DeliveryEngagement
	if err := db.ForUpdate(tx).First(&eng, engagementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound(fmt.Sprintf("engagement #%d not found", engagementID))
		}
		return nil, err
	}
	if !eng.CODSubmissionStatus.AcceptsSubmission() || !eng.CODCollected.IsPositive() {
		return nil, domain.NotEligible(fmt.Sprintf("engagement #%d has no cash awaiting submission", eng.ID))
	}
	remaining := eng.CODRemaining()
	if amount.GreaterThan(remaining) {
		return nil, domain.OverSubmission(fmt.Sprintf("submission %s exceeds remaining %s",
			amount.StringFixed(2), remaining.StringFixed(2)))
	}

	submitted := eng.CODSubmitted.Add(amount)
	next := domain.NextCODSubmissionStatus(submitted, eng.CODCollected)
	if !eng.CODSubmissionStatus.CanTransitionTo(next) {
		return nil, domain.NotEligible(fmt.Sprintf("engagement #%d cannot move from %s to %s", eng.ID, eng.CODSubmissionStatus, next))
	}

	evt := &domain.CashSubmissionEvent{EngagementID: eng.ID, Amount: amount, OccurredAt: time.Now()}
	if err := tx.Create(evt).Error; err != nil {
		return nil, err
	}
	// Guarded on the values read above.
	res := tx.Model(&domain.DeliveryEngagement{}).
		Where("id = ? AND cod_submitted = ? AND cod_submission_status = ?", eng.ID, eng.CODSubmitted, eng.CODSubmissionStatus).
		Updates(map[string]any{
			"cod_submitted":         submitted,
			"cod_submission_status": next,
			"updated_at":            time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.NotEligible(fmt.Sprintf("engagement #%d changed concurrently", eng.ID))
	}
	eng.CODSubmitted = submitted
	eng.CODSubmissionStatus = next
	return &eng, nil
}

// Pending lists completed engagements still holding collected cash, optionally for one agent.
func (e *Engine) Pending(ctx context.Context, agentID uint) ([]domain.DeliveryEngagement, error) {
	q := e.db.WithContext(ctx).
		Where("status = ?", domain.EngagementCompleted).
		Where("cod_collected > 0").
		Where("cod_submission_status IN ?", []domain.CODSubmissionStatus{domain.CODPending, domain.CODPartiallySubmitted})
	if agentID != 0 {
		q = q.Where("delivery_agent_id = ?", agentID)
	}
	var out []domain.DeliveryEngagement
	if err := q.Order("id").Find(&out).Error; err != nil {
		return nil, domain.Infrastructure("list pending cash collections", err)
	}
	return out, nil
}

// Submissions lists the cash hand-backs recorded for an engagement, oldest first.
func (e *Engine) Submissions(ctx context.Context, engagementID uint) ([]domain.CashSubmissionEvent, error) {
	var out []domain.CashSubmissionEvent
	err := e.db.WithContext(ctx).Where("engagement_id = ?", engagementID).
		Order("occurred_at").Order("id").Find(&out).Error
	if err != nil {
		return nil, domain.Infrastructure("list cash submissions", err)
	}
	return out, nil
}
