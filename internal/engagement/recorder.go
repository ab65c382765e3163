// Package engagement is the write path order fulfillment uses to report delivery facts.
package engagement

import (
	"context" // Request scoped cancellation
	"fmt"     // Message formatting
	"time"    // Update timestamps

	"settlement_ledger/internal/authz"  // Permission checks
	"settlement_ledger/internal/db"     // Atomic unit of work
	"settlement_ledger/internal/domain" // Importing domain models
	"settlement_ledger/internal/lock"   // Per-entity locks

	"github.com/shopspring/decimal" // Exact money arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
	"gorm.io/gorm"                  // GORM ORM library
	"gorm.io/gorm/clause"           // Upsert clauses
)

// Input carries the fulfillment-owned fields of one engagement.
type Input struct {
	OrderID         uint                    `json:"order_id" binding:"required"`
	DeliveryAgentID uint                    `json:"delivery_agent_id" binding:"required"`
	Status          domain.EngagementStatus `json:"status" binding:"required"`
	CODCollected    decimal.Decimal         `json:"cod_collected"`
	TotalEarnings   decimal.Decimal         `json:"total_earnings"`
}

// Recorder upserts engagements by (order, agent).
type Recorder struct {
	db     *gorm.DB
	locker lock.Locker
}

// NewRecorder creates a recorder serializing refreshes through locker.
func NewRecorder(gdb *gorm.DB, locker lock.Locker) *Recorder {
	return &Recorder{db: gdb, locker: locker}
}

// Record inserts the engagement or refreshes its status, collected cash and earnings.
// Submission and payment fields are never written here.
func (r *Recorder) Record(ctx context.Context, actor authz.Context, in Input) (*domain.DeliveryEngagement, error) {
	if err := actor.Require(authz.RecordIntake); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	fresh := &domain.DeliveryEngagement{
		OrderID:             in.OrderID,
		DeliveryAgentID:     in.DeliveryAgentID,
		Status:              in.Status,
		CODCollected:        in.CODCollected,
		CODSubmitted:        decimal.Zero,
		CODSubmissionStatus: domain.CODPending,
		TotalEarnings:       in.TotalEarnings,
		PaymentStatus:       domain.PaymentPending,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(fresh)
	if res.Error != nil {
		return nil, domain.Infrastructure("record engagement", res.Error)
	}
	if res.RowsAffected == 1 {
		logrus.WithFields(logrus.Fields{
			"engagement_id": fresh.ID,
			"order_id":      in.OrderID,
			"agent_id":      in.DeliveryAgentID,
			"actor_id":      actor.ActorID,
		}).Info("Engagement recorded")
		return fresh, nil
	}

	var existing domain.DeliveryEngagement
	err := r.db.WithContext(ctx).Select("id").
		Where("order_id = ? AND delivery_agent_id = ?", in.OrderID, in.DeliveryAgentID).
		First(&existing).Error
	if err != nil {
		return nil, domain.Infrastructure("load engagement", err)
	}
	return db.Atomic(ctx, r.db, r.locker, []string{lock.EngagementKey(existing.ID)}, func(tx *gorm.DB) (*domain.DeliveryEngagement, error) {
		return refresh(tx, existing.ID, in)
	})
}

func refresh(tx *gorm.DB, id uint, in Input) (*domain.DeliveryEngagement, error) {
	var eng domain.DeliveryEngagement
	if err := db.ForUpdate(tx).First(&eng, id).Error; err != nil {
		return nil, err
	}
	if eng.Status.Terminal() && eng.Status != in.Status {
		return nil, domain.NotEligible(fmt.Sprintf("engagement #%d is already %s", eng.ID, eng.Status))
	}
	if !eng.CODCollected.Equal(in.CODCollected) {
		switch {
		case in.CODCollected.LessThan(eng.CODSubmitted):
			return nil, domain.Validation(fmt.Sprintf("cod_collected cannot drop below the %s already submitted", eng.CODSubmitted.StringFixed(2)))
		case eng.CODSubmissionStatus == domain.CODSubmitted:
			return nil, domain.NotEligible(fmt.Sprintf("cash for engagement #%d is fully submitted", eng.ID))
		case eng.CODSubmitted.IsPositive() && in.CODCollected.Equal(eng.CODSubmitted):
			return nil, domain.NotEligible(fmt.Sprintf("cash for engagement #%d must be closed by a submission", eng.ID))
		}
	}
	if eng.PaymentStatus == domain.PaymentPaid && !eng.TotalEarnings.Equal(in.TotalEarnings) {
		return nil, domain.NotEligible(fmt.Sprintf("earnings for engagement #%d are already paid", eng.ID))
	}

	err := tx.Model(&domain.DeliveryEngagement{}).Where("id = ?", eng.ID).Updates(map[string]any{
		"status":         in.Status,
		"cod_collected":  in.CODCollected,
		"total_earnings": in.TotalEarnings,
		"updated_at":     time.Now(),
	}).Error
	if err != nil {
		return nil, err
	}
	eng.Status = in.Status
	eng.CODCollected = in.CODCollected
	eng.TotalEarnings = in.TotalEarnings
	return &eng, nil
}

func validate(in Input) error {
	if in.OrderID == 0 || in.DeliveryAgentID == 0 {
		return domain.Validation("order and delivery agent are required")
	}
	if !in.Status.Valid() {
		return domain.Validation(fmt.Sprintf("unknown engagement status %q", in.Status))
	}
	if in.CODCollected.IsNegative() || !in.CODCollected.Equal(in.CODCollected.Round(2)) {
		return domain.Validation("cod_collected must be a non-negative amount with at most two decimals")
	}
	if in.TotalEarnings.IsNegative() || !in.TotalEarnings.Equal(in.TotalEarnings.Round(2)) {
		return domain.Validation("total_earnings must be a non-negative amount with at most two decimals")
	}
	return nil
}
