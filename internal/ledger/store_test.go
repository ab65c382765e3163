package ledger

import (
	"context"
	"sync"
	"testing"

	"settlement_ledger/internal/domain"
	"settlement_ledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adminPosting = Posting{Method: domain.MethodAdmin, Reference: "TEST-1", Description: "test"}

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testutil.NewDB(t), testutil.NewLocker(), "USD")
}

func TestGetCreatesZeroWallet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	w, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, uint(42), w.OwnerID)
	assert.Equal(t, "USD", w.Currency)
	testutil.AssertMoney(t, "0", w.AvailableBalance)
	testutil.AssertMoney(t, "0", w.BlockedBalance)

	again, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
	assert.Empty(t, testutil.Entries(t, s.DB(), 42))
}

func TestGetRejectsMissingOwner(t *testing.T) {
	_, err := newStore(t).Get(context.Background(), 0)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestCreditWritesOneEntry(t *testing.T) {
	s := newStore(t)
	entry, err := s.Credit(context.Background(), 1, testutil.D("150.25"), adminPosting)
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, domain.DirectionCredit, entry.Direction)
	assert.Equal(t, domain.EntryStatusCompleted, entry.Status)

	w := testutil.Wallet(t, s.DB(), 1)
	testutil.AssertMoney(t, "150.25", w.AvailableBalance)
	entries := testutil.Entries(t, s.DB(), 1)
	require.Len(t, entries, 1)
	assert.Equal(t, "TEST-1", entries[0].Reference)
}

func TestCreditValidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, amount := range []string{"0", "-5", "1.005"} {
		_, err := s.Credit(ctx, 1, testutil.D(amount), adminPosting)
		assert.True(t, domain.IsKind(err, domain.KindValidation), amount)
	}
	_, err := s.Credit(ctx, 1, testutil.D("5"), Posting{})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Empty(t, testutil.Entries(t, s.DB(), 1))
}

func TestDebitInsufficientFunds(t *testing.T) {
	s := newStore(t)
	testutil.SeedWallet(t, s.DB(), 1, "100", "0")

	_, err := s.Debit(context.Background(), 1, testutil.D("100.01"), adminPosting)
	assert.True(t, domain.IsKind(err, domain.KindInsufficientFunds))
	testutil.AssertMoney(t, "100", testutil.Wallet(t, s.DB(), 1).AvailableBalance)
	assert.Empty(t, testutil.Entries(t, s.DB(), 1))

	entry, err := s.Debit(context.Background(), 1, testutil.D("100"), adminPosting)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionDebit, entry.Direction)
	testutil.AssertMoney(t, "0", testutil.Wallet(t, s.DB(), 1).AvailableBalance)
}

func TestBlockReleaseSettle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	testutil.SeedWallet(t, s.DB(), 1, "1000", "0")

	w, err := s.Block(ctx, 1, testutil.D("300"))
	require.NoError(t, err)
	testutil.AssertMoney(t, "700", w.AvailableBalance)
	testutil.AssertMoney(t, "300", w.BlockedBalance)

	_, err = s.Block(ctx, 1, testutil.D("700.01"))
	assert.True(t, domain.IsKind(err, domain.KindInsufficientFunds))

	w, err = s.Release(ctx, 1, testutil.D("100"))
	require.NoError(t, err)
	testutil.AssertMoney(t, "800", w.AvailableBalance)
	testutil.AssertMoney(t, "200", w.BlockedBalance)

	_, err = s.Release(ctx, 1, testutil.D("200.01"))
	assert.True(t, domain.IsKind(err, domain.KindInsufficientFunds))

	entry, err := s.SettleBlock(ctx, 1, testutil.D("200"), Posting{Method: domain.MethodWithdrawal, Description: "payout"})
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionDebit, entry.Direction)

	final := testutil.Wallet(t, s.DB(), 1)
	testutil.AssertMoney(t, "800", final.AvailableBalance)
	testutil.AssertMoney(t, "0", final.BlockedBalance)
	assert.Len(t, testutil.Entries(t, s.DB(), 1), 1, "block and release write no entries")
}

func TestEntryFailureRollsBackBalance(t *testing.T) {
	s := newStore(t)
	testutil.SeedWallet(t, s.DB(), 1, "10", "0")
	testutil.FailInserts(t, s.DB(), "ledger_entries")

	_, err := s.Credit(context.Background(), 1, testutil.D("5"), adminPosting)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInfrastructure))
	testutil.AssertMoney(t, "10", testutil.Wallet(t, s.DB(), 1).AvailableBalance)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := newStore(t)
	testutil.SeedWallet(t, s.DB(), 1, "100", "0")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Debit(context.Background(), 1, testutil.D("30"), adminPosting)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.True(t, domain.IsKind(err, domain.KindInsufficientFunds), err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted)
	testutil.AssertMoney(t, "10", testutil.Wallet(t, s.DB(), 1).AvailableBalance)
	assert.Len(t, testutil.Entries(t, s.DB(), 1), 3)
}

func TestHistoryPaginatesNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := s.Credit(ctx, 9, testutil.D("1"), adminPosting)
		require.NoError(t, err)
	}
	_, err := s.Credit(ctx, 10, testutil.D("1"), adminPosting)
	require.NoError(t, err)

	page, err := s.History(ctx, 9, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Items, 2)
	assert.Greater(t, page.Items[0].ID, page.Items[1].ID)

	last, err := s.History(ctx, 9, 3, 2)
	require.NoError(t, err)
	assert.Len(t, last.Items, 1)

	empty, err := s.History(ctx, 404, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Equal(t, defaultPageSize, empty.PageSize)
}

func TestHistoryHonorsCanceledContext(t *testing.T) {
	s := newStore(t)
	_, err := s.Credit(context.Background(), 7, testutil.D("1"), adminPosting)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.History(ctx, 7, 1, 20)
	assert.True(t, domain.IsKind(err, domain.KindInfrastructure))
}
