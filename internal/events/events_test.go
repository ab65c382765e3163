package events

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStampsIDAndTime(t *testing.T) {
	a := New(EarningsPaid, 4, 9, decimal.RequireFromString("12.50"), "ENG-9")
	b := New(EarningsPaid, 4, 9, decimal.RequireFromString("12.50"), "ENG-9")
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.OccurredAt.IsZero())
	assert.Equal(t, "ENG-9", a.Reference)
}

func TestEmitLogsPublishFailure(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	rec := &Recorder{Err: errors.New("broker down")}
	Emit(context.Background(), rec, New(CashSubmitted, 1, 2, decimal.NewFromInt(5), "ENG-2"))

	assert.Empty(t, rec.Events())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, CashSubmitted, hook.LastEntry().Data["type"])
}

func TestEmitNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, New(CashSubmitted, 1, 2, decimal.NewFromInt(5), ""))
	})
}

func TestRecorderOfType(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()
	require.NoError(t, rec.Publish(ctx, New(WithdrawalRequested, 1, 1, decimal.NewFromInt(1), "")))
	require.NoError(t, rec.Publish(ctx, New(WithdrawalApproved, 1, 1, decimal.NewFromInt(1), "")))
	assert.Len(t, rec.OfType(WithdrawalApproved), 1)
	assert.Len(t, rec.Events(), 2)
}

func TestKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "ledger.events")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "ledger.events")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
