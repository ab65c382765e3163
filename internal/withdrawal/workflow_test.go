package withdrawal

import (
	"context"
	"sync"
	"testing"

	"settlement_ledger/internal/authz"
	"settlement_ledger/internal/domain"
	"settlement_ledger/internal/events"
	"settlement_ledger/internal/ledger"
	"settlement_ledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const payee = uint(5)

var (
	admin  = authz.ForUser(1, domain.RoleAdmin)
	seller = authz.ForUser(payee, domain.RoleSeller)
)

func setup(t *testing.T) (*gorm.DB, *Workflow, *events.Recorder) {
	t.Helper()
	gdb := testutil.NewDB(t)
	rec := &events.Recorder{}
	store := ledger.NewStore(gdb, testutil.NewLocker(), "USD")
	testutil.SeedWallet(t, gdb, payee, "1000", "0")
	return gdb, NewWorkflow(store, rec), rec
}

func request(t *testing.T, w *Workflow, amount string) *domain.WithdrawalRequest {
	t.Helper()
	req, err := w.CreateRequest(context.Background(), seller, CreateInput{
		PayeeID:   payee,
		PayeeType: domain.PayeeSeller,
		Amount:    testutil.D(amount),
		Note:      "monthly payout",
	})
	require.NoError(t, err)
	return req
}

func TestApproveSettlesBlockedFunds(t *testing.T) {
	gdb, w, rec := setup(t)

	req := request(t, w, "300")
	assert.Equal(t, domain.WithdrawalPending, req.Status)
	wallet := testutil.Wallet(t, gdb, payee)
	testutil.AssertMoney(t, "700", wallet.AvailableBalance)
	testutil.AssertMoney(t, "300", wallet.BlockedBalance)

	decided, err := w.Decide(context.Background(), admin, req.ID, "approved", "paid out")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalApproved, decided.Status)
	assert.Equal(t, "paid out", decided.AdminRemark)
	require.NotNil(t, decided.ProcessedBy)
	assert.Equal(t, uint(1), *decided.ProcessedBy)
	require.NotNil(t, decided.SettlementTransactionID)

	wallet = testutil.Wallet(t, gdb, payee)
	testutil.AssertMoney(t, "700", wallet.AvailableBalance)
	testutil.AssertMoney(t, "0", wallet.BlockedBalance)

	entries := testutil.Entries(t, gdb, payee)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.DirectionDebit, entries[0].Direction)
	assert.Equal(t, domain.MethodWithdrawal, entries[0].Method)
	assert.Equal(t, *decided.SettlementTransactionID, entries[0].ID)
	testutil.AssertMoney(t, "300", entries[0].Amount)
	assert.Equal(t, "Seller withdrawal request #1 approved", entries[0].Description)

	stored, err := w.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalApproved, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)

	assert.Len(t, rec.OfType(events.WithdrawalRequested), 1)
	assert.Len(t, rec.OfType(events.WithdrawalApproved), 1)
}

func TestRejectRestoresAvailableBalance(t *testing.T) {
	gdb, w, rec := setup(t)

	req := request(t, w, "250.50")
	decided, err := w.Decide(context.Background(), admin, req.ID, "rejected", "missing bank details")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalRejected, decided.Status)
	assert.Nil(t, decided.SettlementTransactionID)

	wallet := testutil.Wallet(t, gdb, payee)
	testutil.AssertMoney(t, "1000", wallet.AvailableBalance)
	testutil.AssertMoney(t, "0", wallet.BlockedBalance)
	assert.Empty(t, testutil.Entries(t, gdb, payee))
	assert.Len(t, rec.OfType(events.WithdrawalRejected), 1)
}

func TestReleaseIgnoresInterveningCredits(t *testing.T) {
	gdb, w, _ := setup(t)

	req := request(t, w, "400")
	_, err := w.store.Credit(context.Background(), payee, testutil.D("50"), ledger.Posting{Method: domain.MethodSystem})
	require.NoError(t, err)

	_, err = w.Decide(context.Background(), admin, req.ID, "rejected", "")
	require.NoError(t, err)
	wallet := testutil.Wallet(t, gdb, payee)
	testutil.AssertMoney(t, "1050", wallet.AvailableBalance)
	testutil.AssertMoney(t, "0", wallet.BlockedBalance)
}

func TestSecondDecisionIsAlreadyProcessed(t *testing.T) {
	gdb, w, _ := setup(t)
	ctx := context.Background()
	req := request(t, w, "100")

	_, err := w.Decide(ctx, admin, req.ID, "approved", "")
	require.NoError(t, err)
	_, err = w.Decide(ctx, admin, req.ID, "rejected", "")
	assert.True(t, domain.IsKind(err, domain.KindAlreadyProcessed))
	_, err = w.Decide(ctx, admin, req.ID, "approved", "")
	assert.True(t, domain.IsKind(err, domain.KindAlreadyProcessed))

	wallet := testutil.Wallet(t, gdb, payee)
	testutil.AssertMoney(t, "900", wallet.AvailableBalance)
	testutil.AssertMoney(t, "0", wallet.BlockedBalance)
	assert.Len(t, testutil.Entries(t, gdb, payee), 1)
}

func TestConcurrentDecisionsCommitOnce(t *testing.T) {
	gdb, w, _ := setup(t)
	req := request(t, w, "100")

	decisions := []string{"approved", "rejected", "approved", "rejected", "approved"}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, d := range decisions {
		wg.Add(1)
		go func(i int, d string) {
			defer wg.Done()
			_, errs[i] = w.Decide(context.Background(), admin, req.ID, d, "")
		}(i, d)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		assert.True(t, domain.IsKind(err, domain.KindAlreadyProcessed), err)
	}
	assert.Equal(t, 1, committed)

	wallet := testutil.Wallet(t, gdb, payee)
	testutil.AssertMoney(t, "0", wallet.BlockedBalance)
	assert.True(t, wallet.Equity().Equal(testutil.D("900")) || wallet.Equity().Equal(testutil.D("1000")))
}

func TestCreateRequestRejections(t *testing.T) {
	gdb, w, rec := setup(t)
	ctx := context.Background()

	_, err := w.CreateRequest(ctx, seller, CreateInput{PayeeID: payee, PayeeType: domain.PayeeSeller, Amount: testutil.D("1000.01")})
	assert.True(t, domain.IsKind(err, domain.KindInsufficientFunds))

	_, err = w.CreateRequest(ctx, seller, CreateInput{PayeeID: payee, PayeeType: domain.PayeeSeller, Amount: testutil.D("-1")})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = w.CreateRequest(ctx, seller, CreateInput{PayeeID: payee, PayeeType: "buyer", Amount: testutil.D("1")})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	other := authz.ForUser(99, domain.RoleSeller)
	_, err = w.CreateRequest(ctx, other, CreateInput{PayeeID: payee, PayeeType: domain.PayeeSeller, Amount: testutil.D("1")})
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	wallet := testutil.Wallet(t, gdb, payee)
	testutil.AssertMoney(t, "1000", wallet.AvailableBalance)
	testutil.AssertMoney(t, "0", wallet.BlockedBalance)
	assert.Empty(t, rec.Events())
}

func TestDecideRejections(t *testing.T) {
	_, w, _ := setup(t)
	ctx := context.Background()
	req := request(t, w, "10")

	_, err := w.Decide(ctx, admin, req.ID, "pending", "")
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = w.Decide(ctx, admin, 404, "approved", "")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = w.Decide(ctx, seller, req.ID, "approved", "")
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	agentAdmin := authz.ForUser(2, domain.RoleDeliveryAgent, authz.ProcessAgentWithdrawal)
	_, err = w.Decide(ctx, agentAdmin, req.ID, "approved", "")
	assert.True(t, domain.IsKind(err, domain.KindForbidden), "seller requests need the seller permission")

	sellerAdmin := authz.ForUser(3, domain.RoleSeller, authz.ProcessSellerWithdrawal)
	_, err = w.Decide(ctx, sellerAdmin, req.ID, "approved", "")
	assert.NoError(t, err)
}

func TestFailedSettlementKeepsRequestPending(t *testing.T) {
	gdb, w, rec := setup(t)
	req := request(t, w, "300")
	testutil.FailInserts(t, gdb, "ledger_entries")

	_, err := w.Decide(context.Background(), admin, req.ID, "approved", "")
	assert.True(t, domain.IsKind(err, domain.KindInfrastructure))

	stored, err := w.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalPending, stored.Status)
	assert.Nil(t, stored.ProcessedAt)
	wallet := testutil.Wallet(t, gdb, payee)
	testutil.AssertMoney(t, "700", wallet.AvailableBalance)
	testutil.AssertMoney(t, "300", wallet.BlockedBalance)
	assert.Empty(t, rec.OfType(events.WithdrawalApproved))
}

func TestListAndEligible(t *testing.T) {
	_, w, _ := setup(t)
	ctx := context.Background()
	first := request(t, w, "10")
	second := request(t, w, "20")
	_, err := w.Decide(ctx, admin, first.ID, "rejected", "")
	require.NoError(t, err)

	all, err := w.List(ctx, Filter{PayeeID: payee})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	pending, err := w.List(ctx, Filter{Status: domain.WithdrawalPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	ids, err := w.Eligible(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, []uint{second.ID}, ids)
}
