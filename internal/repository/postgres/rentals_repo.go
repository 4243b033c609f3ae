package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/xp-ledger/internal/db"
	"github.com/baharkarakas/xp-ledger/internal/models"
	"github.com/baharkarakas/xp-ledger/internal/repository"
)

type rentalsRepo struct{ pool db.DB }

func NewRentals(pool db.DB) repository.Rentals {
	return &rentalsRepo{pool: pool}
}

func (r *rentalsRepo) Create(ctx context.Context, rt models.Rental) error {
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO rentals (id, territory_id, owner_id, occupant_id, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rt.ID, rt.TerritoryID, rt.OwnerID, rt.OccupantID, rt.Amount, rt.CreatedAt,
	)
	return err
}
