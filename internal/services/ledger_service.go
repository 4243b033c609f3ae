package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/xp-ledger/internal/metrics"
	"github.com/baharkarakas/xp-ledger/internal/models"
	repo "github.com/baharkarakas/xp-ledger/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type LedgerConfig struct {
	DailyCap     int64
	PerKmRate    float64
	StoreTimeout time.Duration
	// Location is used for the daily window when the caller sends no zone.
	Location *time.Location
}

// Result is returned by every balance mutation. HistoryErr is set, wrapping
// ErrLogAppendFailed, when the balance changed but its record was not stored.
type Result struct {
	NewBalance    int64
	Debt          int64
	TransactionID string
	HistoryErr    error
}

type DailyCap struct {
	CanEarn     bool  `json:"can_earn"`
	EarnedToday int64 `json:"earned_today"`
	Remaining   int64 `json:"remaining"`
	Cap         int64 `json:"cap"`
}

// LedgerService is the only writer of XP balances.
type LedgerService struct {
	bal repo.Balances
	trx repo.Transactions
	cfg LedgerConfig
	log *slog.Logger
	now func() time.Time
}

func NewLedgerService(b repo.Balances, t repo.Transactions, cfg LedgerConfig, log *slog.Logger) *LedgerService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &LedgerService{bal: b, trx: t, cfg: cfg, log: log, now: time.Now}
}

// SetNowFunc overrides the clock for deterministic tests.
func (s *LedgerService) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// ----------------- Helpers -----------------

func (s *LedgerService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// record appends the history entry for a mutation that already happened.
// Failures are logged and returned, never propagated as operation errors.
func (s *LedgerService) record(ctx context.Context, at time.Time, userID string, amount int64, kind models.TransactionKind, desc string, meta models.Metadata) (string, error) {
	tx := models.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: desc,
		Metadata:    meta,
		CreatedAt:   at.UTC(),
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.trx.Append(ctx, tx); err != nil {
		metrics.HistoryAppendFailures.Inc()
		s.log.Warn("history append failed, balance mutation kept",
			"user_id", userID, "amount", amount, "kind", kind, "tx_id", tx.ID, "err", err)
		return tx.ID, fmt.Errorf("%w: %v", ErrLogAppendFailed, err)
	}
	return tx.ID, nil
}

func (s *LedgerService) fail(op string, err error) error {
	wrapped := storeErr(op, err)
	reason := "store_unavailable"
	if errors.Is(wrapped, ErrStoreTimeout) {
		reason = "store_timeout"
	}
	metrics.MutationFailures.WithLabelValues(reason).Inc()
	s.log.Error("ledger store failure", "op", op, "reason", reason, "err", err)
	return wrapped
}

func validate(userID string, amount int64, kind models.TransactionKind) error {
	if userID == "" {
		return ErrInvalidUser
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if !kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

// ----------------- Reads -----------------

// GetBalance returns 0 for users that never held XP.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidUser
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	b, err := s.bal.Get(ctx, userID)
	if err != nil {
		return 0, s.fail("get balance", err)
	}
	return b, nil
}

func (s *LedgerService) History(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	offset = max(offset, 0)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	txs, err := s.trx.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, storeErr("list history", err)
	}
	return txs, nil
}

// CheckDailyCap is advisory. Award does not consult it; callers that want the
// limit must check before awarding.
func (s *LedgerService) CheckDailyCap(ctx context.Context, userID string, loc *time.Location) (DailyCap, error) {
	if userID == "" {
		return DailyCap{}, ErrInvalidUser
	}
	if loc == nil {
		loc = s.cfg.Location
	}
	now := s.now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	earned, err := s.trx.SumEarned(ctx, userID, models.EarningKinds, start, end)
	if err != nil {
		return DailyCap{}, storeErr("daily cap", err)
	}
	remaining := max(s.cfg.DailyCap-earned, 0)
	return DailyCap{
		CanEarn:     remaining > 0,
		EarnedToday: earned,
		Remaining:   remaining,
		Cap:         s.cfg.DailyCap,
	}, nil
}

func (s *LedgerService) ComputeRunReward(distanceKm float64, durationSeconds int64) int64 {
	return RunReward(distanceKm, durationSeconds, s.cfg.PerKmRate)
}

// ----------------- Mutations -----------------

func (s *LedgerService) Award(ctx context.Context, userID string, amount int64, kind models.TransactionKind, desc string, meta models.Metadata) (Result, error) {
	if err := validate(userID, amount, kind); err != nil {
		return Result{}, err
	}
	at := s.now()
	wctx, cancel := s.withTimeout(ctx)
	bal, err := s.bal.Credit(wctx, userID, amount)
	cancel()
	if err != nil {
		return Result{}, s.fail("award", err)
	}

	res := Result{NewBalance: bal}
	res.TransactionID, res.HistoryErr = s.record(ctx, at, userID, amount, kind, desc, meta)
	metrics.MutationsTotal.WithLabelValues(string(kind)).Inc()
	s.log.Debug("xp awarded", "user_id", userID, "amount", amount, "kind", kind, "balance", bal)
	return res, nil
}

func (s *LedgerService) Spend(ctx context.Context, userID string, amount int64, kind models.TransactionKind, desc string, meta models.Metadata) (Result, error) {
	if err := validate(userID, amount, kind); err != nil {
		return Result{}, err
	}
	at := s.now()
	wctx, cancel := s.withTimeout(ctx)
	bal, err := s.bal.Debit(wctx, userID, amount)
	cancel()
	if errors.Is(err, repo.ErrInsufficientFunds) {
		metrics.MutationFailures.WithLabelValues("insufficient_balance").Inc()
		return Result{NewBalance: bal}, &InsufficientBalanceError{UserID: userID, Balance: bal, Requested: amount}
	}
	if err != nil {
		return Result{}, s.fail("spend", err)
	}

	res := Result{NewBalance: bal}
	res.TransactionID, res.HistoryErr = s.record(ctx, at, userID, -amount, kind, desc, meta)
	metrics.MutationsTotal.WithLabelValues(string(kind)).Inc()
	s.log.Debug("xp spent", "user_id", userID, "amount", amount, "kind", kind, "balance", bal)
	return res, nil
}

// Penalize deducts round(base × multiplier). When the balance cannot cover it
// the balance goes to zero, the record still carries the full nominal penalty
// and the unpaid remainder is returned as Result.Debt. Debt is not stored.
func (s *LedgerService) Penalize(ctx context.Context, userID string, baseAmount int64, multiplier float64, reason string) (Result, error) {
	if userID == "" {
		return Result{}, ErrInvalidUser
	}
	if baseAmount <= 0 || multiplier <= 0 || math.IsInf(multiplier, 0) || math.IsNaN(multiplier) {
		return Result{}, ErrInvalidAmount
	}
	penalty := int64(math.Round(float64(baseAmount) * multiplier))
	if penalty <= 0 {
		return Result{}, ErrInvalidAmount
	}

	at := s.now()
	wctx, cancel := s.withTimeout(ctx)
	before, after, err := s.bal.DebitClamped(wctx, userID, penalty)
	cancel()
	if err != nil {
		return Result{}, s.fail("penalize", err)
	}

	res := Result{NewBalance: after, Debt: penalty - (before - after)}
	if reason == "" {
		reason = "penalty"
	}
	meta := models.Metadata{
		"base_amount":    baseAmount,
		"multiplier":     multiplier,
		"balance_before": before,
	}
	if res.Debt > 0 {
		meta["debt"] = res.Debt
		s.log.Info("penalty exceeded balance", "user_id", userID, "penalty", penalty, "balance_before", before, "debt", res.Debt)
	}
	res.TransactionID, res.HistoryErr = s.record(ctx, at, userID, -penalty, models.KindPenalty, reason, meta)
	metrics.MutationsTotal.WithLabelValues(string(models.KindPenalty)).Inc()
	return res, nil
}
