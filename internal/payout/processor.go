// Package payout credits delivery agents for completed engagements, exactly once each.
package payout

import (
	"context" // Request scoped cancellation
	"errors"  // errors.Is for gorm sentinels
	"fmt"     // Message formatting
	"time"    // Payment timestamps

	"settlement_ledger/internal/authz"  // Permission checks
	"settlement_ledger/internal/db"     // Atomic unit of work
	"settlement_ledger/internal/domain" // Importing domain models
	"settlement_ledger/internal/events" // Post-commit events
	"settlement_ledger/internal/ledger" // Wallet mutations
	"settlement_ledger/internal/lock"   // Per-entity locks

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
)

// Payout is the committed result of paying one engagement.
type Payout struct {
	Engagement domain.DeliveryEngagement `json:"engagement"`
	Entry      domain.LedgerEntry        `json:"entry"`
}

// Processor pays earnings through the ledger store.
type Processor struct {
	store     *ledger.Store
	publisher events.Publisher
}

// NewProcessor creates a processor crediting agents through store.
func NewProcessor(store *ledger.Store, publisher events.Publisher) *Processor {
	return &Processor{store: store, publisher: publisher}
}

// ProcessPayout credits the agent's wallet with the engagement's earnings and marks it paid.
// A second call on the same engagement fails with not_eligible before any ledger write.
func (p *Processor) ProcessPayout(ctx context.Context, actor authz.Context, engagementID uint) (*Payout, error) {
	if err := actor.Require(authz.PayEarnings); err != nil {
		return nil, err
	}
	agentID, err := p.agentOf(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	keys := []string{lock.EngagementKey(engagementID), lock.WalletKey(agentID)}
	out, err := db.Atomic(ctx, p.store.DB(), p.store.Locker(), keys, func(tx *gorm.DB) (*Payout, error) {
		return p.pay(tx, engagementID, agentID)
	})
	fields := logrus.Fields{
		"engagement_id": engagementID,
		"agent_id":      agentID,
		"actor_id":      actor.ActorID,
	}
	if err != nil {
		fields["error"] = err.Error()
		if domain.KindOf(err) == domain.KindInfrastructure {
			logrus.WithFields(fields).Error("Earnings payout failed")
		} else {
			logrus.WithFields(fields).Warn("Earnings payout rejected")
		}
		return nil, err
	}
	fields["amount"] = out.Entry.Amount.StringFixed(2)
	fields["entry_id"] = out.Entry.ID
	logrus.WithFields(fields).Info("Earnings paid")

	events.Emit(ctx, p.publisher, events.New(events.EarningsPaid, agentID, engagementID, out.Entry.Amount, out.Entry.Reference))
	return out, nil
}

// agentOf reads the engagement without locking to learn which wallet the payout touches.
func (p *Processor) agentOf(ctx context.Context, engagementID uint) (uint, error) {
	var eng domain.DeliveryEngagement
	err := p.store.DB().WithContext(ctx).Select("id", "delivery_agent_id").First(&eng, engagementID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, domain.NotFound(fmt.Sprintf("engagement #%d not found", engagementID))
	}
	if err != nil {
		return 0, domain.Infrastructure("load engagement", err)
	}
	return eng.DeliveryAgentID, nil
}

func (p *Processor) pay(tx *gorm.DB, engagementID, agentID uint) (*Payout, error) {
	var eng domain.DeliveryEngagement
	if err := db.ForUpdate(tx).First(&eng, engagementID).Error; err != nil {
		return nil, err
	}
	if eng.DeliveryAgentID != agentID {
		return nil, domain.NotEligible(fmt.Sprintf("engagement #%d was reassigned, retry", eng.ID))
	}
	if eng.Status != domain.EngagementCompleted {
		return nil, domain.NotEligible(fmt.Sprintf("engagement #%d is %s, not completed", eng.ID, eng.Status))
	}
	if !eng.PaymentStatus.CanTransitionTo(domain.PaymentPaid) {
		return nil, domain.NotEligible(fmt.Sprintf("earnings for engagement #%d are already %s", eng.ID, eng.PaymentStatus))
	}
	if !eng.TotalEarnings.IsPositive() {
		return nil, domain.NotEligible(fmt.Sprintf("engagement #%d has no earnings to pay", eng.ID))
	}

	entry, err := p.store.WithTx(tx).Credit(agentID, eng.TotalEarnings, ledger.Posting{
		Method:      domain.MethodAdmin,
		Reference:   domain.EngagementRef(eng.ID),
		Description: fmt.Sprintf("Earnings for engagement #%d", eng.ID),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res := tx.Model(&domain.DeliveryEngagement{}).
		Where("id = ? AND payment_status = ?", eng.ID, domain.PaymentPending).
		Updates(map[string]any{
			"payment_status":            domain.PaymentPaid,
			"paid_at":                   now,
			"settlement_transaction_id": entry.ID,
			"updated_at":                now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.NotEligible(fmt.Sprintf("earnings for engagement #%d were paid concurrently", eng.ID))
	}
	eng.PaymentStatus = domain.PaymentPaid
	eng.PaidAt = &now
	eng.SettlementTransactionID = &entry.ID
	return &Payout{Engagement: eng, Entry: *entry}, nil
}

// Eligible lists the ids of completed engagements with unpaid earnings, optionally for one agent.
func (p *Processor) Eligible(ctx context.Context, agentID uint) ([]uint, error) {
	q := p.store.DB().WithContext(ctx).Model(&domain.DeliveryEngagement{}).
		Where("status = ? AND payment_status = ?", domain.EngagementCompleted, domain.PaymentPending).
		Where("total_earnings > 0")
	if agentID != 0 {
		q = q.Where("delivery_agent_id = ?", agentID)
	}
	var ids []uint
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, domain.Infrastructure("list payable engagements", err)
	}
	return ids, nil
}
