package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/xp-ledger/internal/db"
	"github.com/baharkarakas/xp-ledger/internal/models"
	"github.com/baharkarakas/xp-ledger/internal/repository"
)

type transactionsRepo struct{ pool db.DB }

func NewTransactions(pool db.DB) repository.Transactions {
	return &transactionsRepo{pool: pool}
}

func (r *transactionsRepo) Append(ctx context.Context, tx models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO xp_transactions (id, user_id, amount, kind, description, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID, tx.UserID, tx.Amount, string(tx.Kind), tx.Description, tx.Metadata, tx.CreatedAt,
	)
	return err
}

func (r *transactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, amount, kind, description, metadata, created_at
		   FROM xp_transactions
		  WHERE user_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var (
			tx   models.Transaction
			kind string
			meta []byte
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &kind, &tx.Description, &meta, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Kind = models.TransactionKind(kind)
		if len(meta) > 0 {
			if err := tx.Metadata.Scan(meta); err != nil {
				return nil, err
			}
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *transactionsRepo) SumEarned(ctx context.Context, userID string, kinds []models.TransactionKind, from, to time.Time) (int64, error) {
	if len(kinds) == 0 {
		return 0, nil
	}
	args := []any{userID, from, to}
	ph := make([]string, len(kinds))
	for i, k := range kinds {
		args = append(args, string(k))
		ph[i] = fmt.Sprintf("$%d", i+4)
	}
	q := `SELECT COALESCE(SUM(amount), 0)
	        FROM xp_transactions
	       WHERE user_id = $1
	         AND amount > 0
	         AND created_at >= $2 AND created_at < $3
	         AND kind IN (` + strings.Join(ph, ", ") + `)`

	var sum int64
	err := r.pool.QueryRow(ctx, q, args...).Scan(&sum)
	return sum, err
}
