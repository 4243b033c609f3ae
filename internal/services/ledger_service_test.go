package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/xp-ledger/internal/models"
)

func TestAward_CreditsAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.ledger.Award(ctx, "u1", 40, models.KindEarn, "run", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.NewBalance)
	assert.NoError(t, res.HistoryErr)

	txs := f.store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, res.TransactionID, txs[0].ID)
	assert.Equal(t, int64(40), txs[0].Amount)
	assert.Equal(t, models.KindEarn, txs[0].Kind)
	assert.Equal(t, fixedNow, txs[0].CreatedAt)
}

func TestAward_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Award(ctx, "u1", 0, models.KindEarn, "", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.ledger.Award(ctx, "u1", -5, models.KindEarn, "", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.ledger.Award(ctx, "u1", 5, models.TransactionKind("gift"), "", nil)
	assert.ErrorIs(t, err, ErrInvalidKind)
	_, err = f.ledger.Award(ctx, "", 5, models.KindEarn, "", nil)
	assert.ErrorIs(t, err, ErrInvalidUser)

	bal, _ := f.ledger.GetBalance(ctx, "u1")
	assert.Zero(t, bal)
	assert.Empty(t, f.store.Transactions())
}

func TestSpend_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetBalance("u1", 30)

	res, err := f.ledger.Spend(ctx, "u1", 50, models.KindSpend, "shop", nil)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	var ib *InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, int64(30), ib.Balance)
	assert.Equal(t, int64(50), ib.Requested)
	assert.Equal(t, int64(20), ib.Shortfall())
	assert.Equal(t, int64(30), res.NewBalance)

	bal, _ := f.ledger.GetBalance(ctx, "u1")
	assert.Equal(t, int64(30), bal)
	assert.Empty(t, f.store.Transactions())
}

func TestSpend_RecordsNegativeAmount(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance("u1", 100)

	res, err := f.ledger.Spend(context.Background(), "u1", 35, models.KindSpend, "boost", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(65), res.NewBalance)

	txs := f.store.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-35), txs[0].Amount)
}

func TestPenalize(t *testing.T) {
	tests := []struct {
		name       string
		balance    int64
		base       int64
		multiplier float64
		wantBal    int64
		wantDebt   int64
		wantAmount int64
	}{
		{"covered", 100, 20, 1.5, 70, 0, -30},
		{"rounds half away from zero", 100, 10, 1.25, 87, 0, -13},
		{"exact balance", 30, 30, 1, 0, 0, -30},
		{"exceeds balance", 30, 50, 1, 0, 20, -50},
		{"empty balance", 0, 10, 2, 0, 20, -20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.SetBalance("u1", tt.balance)

			res, err := f.ledger.Penalize(context.Background(), "u1", tt.base, tt.multiplier, "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantBal, res.NewBalance)
			assert.Equal(t, tt.wantDebt, res.Debt)

			txs := f.store.Transactions()
			require.Len(t, txs, 1)
			assert.Equal(t, tt.wantAmount, txs[0].Amount)
			assert.Equal(t, models.KindPenalty, txs[0].Kind)
		})
	}
}

func TestPenalize_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Penalize(ctx, "u1", 0, 1, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.ledger.Penalize(ctx, "u1", 10, 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.ledger.Penalize(ctx, "u1", 1, 0.2, "")
	assert.ErrorIs(t, err, ErrInvalidAmount, "rounds to zero")
}

func TestAward_HistoryFailureKeepsBalance(t *testing.T) {
	f := newFixture(t)
	l := NewLedgerService(f.bal, brokenLog{f.store}, testConfig(), quietLogger())

	res, err := l.Award(context.Background(), "u1", 25, models.KindEarn, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.NewBalance)
	assert.ErrorIs(t, res.HistoryErr, ErrLogAppendFailed)

	bal, _ := l.GetBalance(context.Background(), "u1")
	assert.Equal(t, int64(25), bal)
}

func TestAward_ClassifiesStoreErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bal.failCredit("down", errBackend)
	_, err := f.ledger.Award(ctx, "down", 5, models.KindEarn, "", nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrStoreTimeout)

	f.bal.failCredit("slow", context.DeadlineExceeded)
	_, err = f.ledger.Award(ctx, "slow", 5, models.KindEarn, "", nil)
	assert.ErrorIs(t, err, ErrStoreTimeout)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)

	// an abandoned call may still have committed
	f.bal.failCredit("gone", context.Canceled)
	_, err = f.ledger.Award(ctx, "gone", 5, models.KindEarn, "", nil)
	assert.ErrorIs(t, err, ErrStoreTimeout)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestConcurrentAwardsAndSpends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.ledger.Award(ctx, "u1", 1, models.KindEarn, "", nil)
		}()
	}
	wg.Wait()
	bal, _ := f.ledger.GetBalance(ctx, "u1")
	assert.Equal(t, int64(100), bal)
	assert.Len(t, f.store.Transactions(), 100)

	f.store.SetBalance("u2", 50)
	var ok atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Spend(ctx, "u2", 1, models.KindSpend, "", nil); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	bal, _ = f.ledger.GetBalance(ctx, "u2")
	assert.Zero(t, bal)
	assert.Equal(t, int64(50), ok.Load())
}

func TestCheckDailyCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dc, err := f.ledger.CheckDailyCap(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, DailyCap{CanEarn: true, Remaining: 500, Cap: 500}, dc)

	_, err = f.ledger.Award(ctx, "u1", 250, models.KindEarn, "", nil)
	require.NoError(t, err)
	_, err = f.ledger.Spend(ctx, "u1", 100, models.KindSpend, "", nil)
	require.NoError(t, err)

	dc, err = f.ledger.CheckDailyCap(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(250), dc.EarnedToday)
	assert.Equal(t, int64(250), dc.Remaining)
	assert.True(t, dc.CanEarn)

	_, err = f.ledger.Award(ctx, "u1", 300, models.KindBonus, "", nil)
	require.NoError(t, err)
	dc, err = f.ledger.CheckDailyCap(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(550), dc.EarnedToday)
	assert.Zero(t, dc.Remaining)
	assert.False(t, dc.CanEarn)
}

func TestCheckDailyCap_ExactlyAtCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.Award(ctx, "u1", 499, models.KindEarn, "", nil)
	require.NoError(t, err)
	dc, err := f.ledger.CheckDailyCap(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, DailyCap{CanEarn: true, EarnedToday: 499, Remaining: 1, Cap: 500}, dc)

	_, err = f.ledger.Award(ctx, "u1", 1, models.KindEarn, "", nil)
	require.NoError(t, err)
	dc, err = f.ledger.CheckDailyCap(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, DailyCap{CanEarn: false, EarnedToday: 500, Remaining: 0, Cap: 500}, dc)
}

func TestCheckDailyCap_IgnoresYesterdayAndNonEarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Append(ctx, models.Transaction{UserID: "u1", Amount: 400, Kind: models.KindEarn, CreatedAt: fixedNow.Add(-24 * time.Hour)}))
	require.NoError(t, f.store.Append(ctx, models.Transaction{UserID: "u1", Amount: 70, Kind: models.KindRent, CreatedAt: fixedNow}))
	require.NoError(t, f.store.Append(ctx, models.Transaction{UserID: "u1", Amount: 30, Kind: models.KindReferral, CreatedAt: fixedNow}))

	dc, err := f.ledger.CheckDailyCap(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(30), dc.EarnedToday)
	assert.Equal(t, int64(470), dc.Remaining)
}

func TestCheckDailyCap_UsesCallerZone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// 23:30 UTC is 08:30 the next day at UTC+9.
	f.ledger.SetNowFunc(func() time.Time { return time.Date(2026, 10, 16, 23, 30, 0, 0, time.UTC) })
	require.NoError(t, f.store.Append(ctx, models.Transaction{
		UserID: "u1", Amount: 100, Kind: models.KindEarn,
		CreatedAt: time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC),
	}))

	utc, err := f.ledger.CheckDailyCap(ctx, "u1", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, int64(100), utc.EarnedToday)

	tokyo, err := f.ledger.CheckDailyCap(ctx, "u1", time.FixedZone("UTC+9", 9*3600))
	require.NoError(t, err)
	assert.Zero(t, tokyo.EarnedToday)
}

func TestHistory_ClampsPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.ledger.Award(ctx, "u1", 1, models.KindEarn, "", nil)
		require.NoError(t, err)
	}

	txs, err := f.ledger.History(ctx, "u1", 0, -4)
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	txs, err = f.ledger.History(ctx, "u1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
