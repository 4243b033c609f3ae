package repository

import (
	"context"
	"errors"
	"time"

	"github.com/baharkarakas/xp-ledger/internal/models"
)

// ErrInsufficientFunds is returned by Balances.Debit when the row holds less
// than the requested amount. The row is left untouched.
var ErrInsufficientFunds = errors.New("repository: insufficient funds")

// Balances stores one scalar balance per user. Every mutation is atomic at the
// store level, so concurrent callers for the same user never lose updates.
type Balances interface {
	// Get returns 0 when the user has no row yet.
	Get(ctx context.Context, userID string) (int64, error)
	// Credit adds amount and returns the new balance, creating the row if needed.
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
	// Debit subtracts amount only if the balance covers it. On
	// ErrInsufficientFunds the returned value is the current balance.
	Debit(ctx context.Context, userID string, amount int64) (int64, error)
	// DebitClamped subtracts min(balance, amount) and reports the balance
	// before and after.
	DebitClamped(ctx context.Context, userID string, amount int64) (before, after int64, err error)
}

type Transactions interface {
	Append(ctx context.Context, tx models.Transaction) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
	// SumEarned sums positive amounts of the given kinds with from <= created_at < to.
	SumEarned(ctx context.Context, userID string, kinds []models.TransactionKind, from, to time.Time) (int64, error)
}

type Rentals interface {
	Create(ctx context.Context, r models.Rental) error
}

type Referrals interface {
	GetStats(ctx context.Context, userID string) (models.ReferrerStats, error)
	// IncrementStats adds one referral and earned XP in a single write.
	IncrementStats(ctx context.Context, userID string, earned int64) (models.ReferrerStats, error)

	// Claim stores the referral unless the new user already has one. It
	// returns the stored row and whether this call created it.
	Claim(ctx context.Context, r models.Referral) (models.Referral, bool, error)
	// MarkPaid flips one half from unpaid to paid. False means another call
	// already owns that half.
	MarkPaid(ctx context.Context, newUserID string, side models.ReferralSide) (bool, error)
	// UnmarkPaid releases a half whose award failed outright.
	UnmarkPaid(ctx context.Context, newUserID string, side models.ReferralSide) error
}
