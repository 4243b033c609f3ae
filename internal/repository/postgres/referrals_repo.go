package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/baharkarakas/xp-ledger/internal/db"
	"github.com/baharkarakas/xp-ledger/internal/models"
	"github.com/baharkarakas/xp-ledger/internal/repository"
)

type referralsRepo struct{ pool db.DB }

func NewReferrals(pool db.DB) repository.Referrals {
	return &referralsRepo{pool: pool}
}

// ----------------- Counters -----------------

func (r *referralsRepo) GetStats(ctx context.Context, userID string) (models.ReferrerStats, error) {
	s := models.ReferrerStats{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT referral_count, referral_xp_earned FROM referrer_stats WHERE user_id = $1`,
		userID,
	).Scan(&s.Count, &s.TotalEarned)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, nil
	}
	return s, err
}

func (r *referralsRepo) IncrementStats(ctx context.Context, userID string, earned int64) (models.ReferrerStats, error) {
	s := models.ReferrerStats{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO referrer_stats (user_id, referral_count, referral_xp_earned, updated_at)
		 VALUES ($1, 1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE
		    SET referral_count = referrer_stats.referral_count + 1,
		        referral_xp_earned = referrer_stats.referral_xp_earned + EXCLUDED.referral_xp_earned,
		        updated_at = now()
		 RETURNING referral_count, referral_xp_earned`,
		userID, earned,
	).Scan(&s.Count, &s.TotalEarned)
	return s, err
}

// ----------------- Claims -----------------

func (r *referralsRepo) Claim(ctx context.Context, ref models.Referral) (models.Referral, bool, error) {
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO referrals (new_user_id, referrer_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (new_user_id) DO NOTHING`,
		ref.NewUserID, ref.ReferrerID, ref.CreatedAt,
	)
	if err != nil {
		return models.Referral{}, false, err
	}
	stored, err := r.get(ctx, ref.NewUserID)
	return stored, tag.RowsAffected() == 1, err
}

func (r *referralsRepo) get(ctx context.Context, newUserID string) (models.Referral, error) {
	ref := models.Referral{NewUserID: newUserID}
	err := r.pool.QueryRow(ctx,
		`SELECT referrer_id, referrer_paid, new_user_paid, created_at FROM referrals WHERE new_user_id = $1`,
		newUserID,
	).Scan(&ref.ReferrerID, &ref.ReferrerPaid, &ref.NewUserPaid, &ref.CreatedAt)
	return ref, err
}

func paidColumn(side models.ReferralSide) (string, error) {
	switch side {
	case models.SideReferrer:
		return "referrer_paid", nil
	case models.SideNewUser:
		return "new_user_paid", nil
	}
	return "", fmt.Errorf("postgres: unknown referral side %q", side)
}

func (r *referralsRepo) MarkPaid(ctx context.Context, newUserID string, side models.ReferralSide) (bool, error) {
	col, err := paidColumn(side)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE referrals SET `+col+` = true WHERE new_user_id = $1 AND NOT `+col,
		newUserID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *referralsRepo) UnmarkPaid(ctx context.Context, newUserID string, side models.ReferralSide) error {
	col, err := paidColumn(side)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE referrals SET `+col+` = false WHERE new_user_id = $1`,
		newUserID,
	)
	return err
}
