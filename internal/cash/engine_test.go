package cash

import (
	"context"
	"sync"
	"testing"

	"settlement_ledger/internal/authz"
	"settlement_ledger/internal/domain"
	"settlement_ledger/internal/events"
	"settlement_ledger/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var admin = authz.ForUser(1, domain.RoleAdmin)

func seedEngagement(t *testing.T, gdb *gorm.DB, collected string) *domain.DeliveryEngagement {
	t.Helper()
	eng := &domain.DeliveryEngagement{
		OrderID:             testutil.NextID(),
		DeliveryAgentID:     7,
		Status:              domain.EngagementCompleted,
		CODCollected:        testutil.D(collected),
		CODSubmitted:        decimal.Zero,
		CODSubmissionStatus: domain.CODPending,
		TotalEarnings:       testutil.D("10"),
		PaymentStatus:       domain.PaymentPending,
	}
	require.NoError(t, gdb.Create(eng).Error)
	return eng
}

func reload(t *testing.T, gdb *gorm.DB, id uint) domain.DeliveryEngagement {
	t.Helper()
	var eng domain.DeliveryEngagement
	require.NoError(t, gdb.First(&eng, id).Error)
	return eng
}

func submittedSum(t *testing.T, e *Engine, id uint) decimal.Decimal {
	t.Helper()
	subs, err := e.Submissions(context.Background(), id)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, s := range subs {
		sum = sum.Add(s.Amount)
	}
	return sum
}

func TestPartialThenFullSubmission(t *testing.T) {
	gdb := testutil.NewDB(t)
	rec := &events.Recorder{}
	e := NewEngine(gdb, testutil.NewLocker(), rec)
	ctx := context.Background()
	eng := seedEngagement(t, gdb, "500")

	got, err := e.SubmitCash(ctx, admin, eng.ID, testutil.D("200"))
	require.NoError(t, err)
	testutil.AssertMoney(t, "200", got.CODSubmitted)
	assert.Equal(t, domain.CODPartiallySubmitted, got.CODSubmissionStatus)

	got, err = e.SubmitCash(ctx, admin, eng.ID, testutil.D("300"))
	require.NoError(t, err)
	testutil.AssertMoney(t, "500", got.CODSubmitted)
	assert.Equal(t, domain.CODSubmitted, got.CODSubmissionStatus)

	_, err = e.SubmitCash(ctx, admin, eng.ID, testutil.D("1"))
	assert.True(t, domain.IsKind(err, domain.KindNotEligible))

	stored := reload(t, gdb, eng.ID)
	testutil.AssertMoney(t, "500", stored.CODSubmitted)
	assert.Equal(t, domain.CODSubmitted, stored.CODSubmissionStatus)
	testutil.AssertMoney(t, "500", submittedSum(t, e, eng.ID))

	published := rec.OfType(events.CashSubmitted)
	require.Len(t, published, 2)
	assert.Equal(t, uint(7), published[0].OwnerID)
	assert.Equal(t, "ENG-1", published[0].Reference)

	var wallets int64
	require.NoError(t, gdb.Model(&domain.Wallet{}).Count(&wallets).Error)
	assert.Zero(t, wallets, "cash reconciliation never touches wallets")
}

func TestOverSubmission(t *testing.T) {
	gdb := testutil.NewDB(t)
	e := NewEngine(gdb, testutil.NewLocker(), nil)
	eng := seedEngagement(t, gdb, "50")

	_, err := e.SubmitCash(context.Background(), admin, eng.ID, testutil.D("50.01"))
	assert.True(t, domain.IsKind(err, domain.KindOverSubmission))

	stored := reload(t, gdb, eng.ID)
	testutil.AssertMoney(t, "0", stored.CODSubmitted)
	assert.Equal(t, domain.CODPending, stored.CODSubmissionStatus)
}

func TestSubmitRejections(t *testing.T) {
	gdb := testutil.NewDB(t)
	e := NewEngine(gdb, testutil.NewLocker(), nil)
	ctx := context.Background()
	noCash := seedEngagement(t, gdb, "0")
	eng := seedEngagement(t, gdb, "20")

	_, err := e.SubmitCash(ctx, admin, noCash.ID, testutil.D("1"))
	assert.True(t, domain.IsKind(err, domain.KindNotEligible))

	_, err = e.SubmitCash(ctx, admin, eng.ID, testutil.D("0"))
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = e.SubmitCash(ctx, admin, 999, testutil.D("1"))
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = e.SubmitCash(ctx, authz.ForUser(7, domain.RoleDeliveryAgent), eng.ID, testutil.D("1"))
	assert.True(t, domain.IsKind(err, domain.KindForbidden))
}

func TestEventWriteFailureLeavesEngagementUntouched(t *testing.T) {
	gdb := testutil.NewDB(t)
	e := NewEngine(gdb, testutil.NewLocker(), nil)
	eng := seedEngagement(t, gdb, "80")
	testutil.FailInserts(t, gdb, "cash_submission_events")

	_, err := e.SubmitCash(context.Background(), admin, eng.ID, testutil.D("30"))
	assert.True(t, domain.IsKind(err, domain.KindInfrastructure))
	testutil.AssertMoney(t, "0", reload(t, gdb, eng.ID).CODSubmitted)
}

func TestConcurrentSubmissionsNeverExceedCollected(t *testing.T) {
	gdb := testutil.NewDB(t)
	e := NewEngine(gdb, testutil.NewLocker(), nil)
	eng := seedEngagement(t, gdb, "100")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.SubmitCash(context.Background(), admin, eng.ID, testutil.D("25"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			rejected++
			assert.True(t, domain.IsKind(err, domain.KindOverSubmission) || domain.IsKind(err, domain.KindNotEligible), err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, accepted)
	assert.Equal(t, 6, rejected)
	stored := reload(t, gdb, eng.ID)
	testutil.AssertMoney(t, "100", stored.CODSubmitted)
	assert.Equal(t, domain.CODSubmitted, stored.CODSubmissionStatus)
	testutil.AssertMoney(t, "100", submittedSum(t, e, eng.ID))
}

func TestPendingListing(t *testing.T) {
	gdb := testutil.NewDB(t)
	e := NewEngine(gdb, testutil.NewLocker(), nil)
	ctx := context.Background()
	open := seedEngagement(t, gdb, "40")
	seedEngagement(t, gdb, "0")
	done := seedEngagement(t, gdb, "10")
	_, err := e.SubmitCash(ctx, admin, done.ID, testutil.D("10"))
	require.NoError(t, err)

	pending, err := e.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, open.ID, pending[0].ID)

	none, err := e.Pending(ctx, 12345)
	require.NoError(t, err)
	assert.Empty(t, none)
}
