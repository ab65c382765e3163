// Package events announces committed ledger changes to other systems.
//
// Events are published after the owning transaction commits. A failed publish is logged
// and never undoes the committed change.
package events

import (
	"context" // Publish deadlines
	"sync"    // Recorder guard
	"time"    // Event timestamps

	"github.com/google/uuid"        // Event ids
	"github.com/shopspring/decimal" // Money amounts
	"github.com/sirupsen/logrus"    // Structured logging
)

// Event types.
const (
	WithdrawalRequested = "withdrawal.requested"
	WithdrawalApproved  = "withdrawal.approved"
	WithdrawalRejected  = "withdrawal.rejected"
	EarningsPaid        = "earnings.paid"
	CommissionSettled   = "commission.settled"
	CommissionDebited   = "commission.debited"
	CashSubmitted       = "cash.submitted"
)

// Event is one committed ledger change.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OwnerID    uint            `json:"owner_id"`
	EntityID   uint            `json:"entity_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType string, ownerID, entityID uint, amount decimal.Decimal, reference string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OwnerID:    ownerID,
		EntityID:   entityID,
		Amount:     amount,
		Reference:  reference,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to a downstream channel.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Emit publishes evt and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, evt Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, evt); err != nil {
		logrus.WithFields(logrus.Fields{
			"event_id":  evt.ID,
			"type":      evt.Type,
			"owner_id":  evt.OwnerID,
			"entity_id": evt.EntityID,
			"error":     err.Error(),
		}).Error("Failed to publish ledger event")
	}
}

// LogPublisher writes events to the application log.
type LogPublisher struct{}

// Publish logs evt at info level.
func (LogPublisher) Publish(_ context.Context, evt Event) error {
	logrus.WithFields(logrus.Fields{
		"event_id":  evt.ID,
		"type":      evt.Type,
		"owner_id":  evt.OwnerID,
		"entity_id": evt.EntityID,
		"amount":    evt.Amount.StringFixed(2),
		"reference": evt.Reference,
	}).Info("Ledger event")
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error // Returned from every Publish when set
}

// Publish records evt, or fails with Err when it is set.
func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters the recorded events by type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
