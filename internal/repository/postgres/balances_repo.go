package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/baharkarakas/xp-ledger/internal/db"
	"github.com/baharkarakas/xp-ledger/internal/repository"
)

type balancesRepo struct{ pool db.DB }

func NewBalances(pool db.DB) repository.Balances {
	return &balancesRepo{pool: pool}
}

func (r *balancesRepo) Get(ctx context.Context, userID string) (int64, error) {
	var amount int64
	err := r.pool.QueryRow(ctx,
		`SELECT amount FROM balances WHERE user_id = $1`,
		userID,
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return amount, err
}

func (r *balancesRepo) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO balances (user_id, amount, last_updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE
		    SET amount = balances.amount + EXCLUDED.amount,
		        last_updated_at = now()
		 RETURNING amount`,
		userID, amount,
	).Scan(&balance)
	return balance, err
}

func (r *balancesRepo) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`UPDATE balances
		    SET amount = amount - $2,
		        last_updated_at = now()
		  WHERE user_id = $1 AND amount >= $2
		  RETURNING amount`,
		userID, amount,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		cur, gerr := r.Get(ctx, userID)
		if gerr != nil {
			return 0, gerr
		}
		return cur, repository.ErrInsufficientFunds
	}
	return balance, err
}

func (r *balancesRepo) DebitClamped(ctx context.Context, userID string, amount int64) (before, after int64, err error) {
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT amount FROM balances WHERE user_id = $1 FOR UPDATE`,
			userID,
		).Scan(&before)
		if errors.Is(err, pgx.ErrNoRows) {
			before, after = 0, 0
			return nil
		}
		if err != nil {
			return err
		}
		after = before - min(before, amount)
		_, err = tx.Exec(ctx,
			`UPDATE balances SET amount = $2, last_updated_at = now() WHERE user_id = $1`,
			userID, after,
		)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return before, after, nil
}
