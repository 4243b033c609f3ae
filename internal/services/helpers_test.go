package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/baharkarakas/xp-ledger/internal/alert"
	"github.com/baharkarakas/xp-ledger/internal/models"
	"github.com/baharkarakas/xp-ledger/internal/repository"
	"github.com/baharkarakas/xp-ledger/internal/repository/memory"
)

var (
	fixedNow   = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	errBackend = errors.New("connection refused")
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() LedgerConfig {
	return LedgerConfig{DailyCap: 500, PerKmRate: 1, StoreTimeout: time.Second, Location: time.UTC}
}

// flakyBalances fails Credit for selected users. beforeCredit, when set,
// runs ahead of every credit and may cancel the caller's context.
type flakyBalances struct {
	repository.Balances
	mu           sync.Mutex
	creditErr    map[string]error
	beforeCredit func(userID string)
}

func (f *flakyBalances) failCredit(userID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creditErr[userID] = err
}

func (f *flakyBalances) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	f.mu.Lock()
	err, hook := f.creditErr[userID], f.beforeCredit
	f.mu.Unlock()
	if hook != nil {
		hook(userID)
	}
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.Balances.Credit(ctx, userID, amount)
}

// brokenLog rejects every append.
type brokenLog struct{ repository.Transactions }

func (brokenLog) Append(context.Context, models.Transaction) error { return errBackend }

type mockAlerter struct{ mock.Mock }

func (m *mockAlerter) Critical(ctx context.Context, e alert.Event) { m.Called(ctx, e) }

type fixture struct {
	store  *memory.Store
	bal    *flakyBalances
	ledger *LedgerService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memory.NewStore()
	fb := &flakyBalances{Balances: st, creditErr: map[string]error{}}
	l := NewLedgerService(fb, st, testConfig(), quietLogger())
	l.SetNowFunc(func() time.Time { return fixedNow })
	return fixture{store: st, bal: fb, ledger: l}
}
