package services

import (
	"context"
	"fmt"
	"time"

	"github.com/baharkarakas/xp-ledger/internal/models"
)

type RunResult struct {
	Reward     int64    `json:"reward"`
	Awarded    int64    `json:"awarded"`
	Capped     bool     `json:"capped"`
	NewBalance int64    `json:"new_balance"`
	DailyCap   DailyCap `json:"daily_cap"`
	HistoryErr error    `json:"-"`
}

// CompleteRun computes the run reward and awards as much of it as today's
// cap still allows. A run past the cap awards nothing and is not an error.
func (s *LedgerService) CompleteRun(ctx context.Context, userID string, distanceKm float64, durationSeconds int64, loc *time.Location) (RunResult, error) {
	if userID == "" {
		return RunResult{}, ErrInvalidUser
	}
	if distanceKm <= 0 || durationSeconds < 0 {
		return RunResult{}, ErrInvalidAmount
	}

	out := RunResult{Reward: s.ComputeRunReward(distanceKm, durationSeconds)}
	dc, err := s.CheckDailyCap(ctx, userID, loc)
	if err != nil {
		return out, err
	}
	out.Awarded = min(out.Reward, dc.Remaining)
	out.Capped = out.Awarded < out.Reward

	if out.Awarded <= 0 {
		out.DailyCap = dc
		bal, err := s.GetBalance(ctx, userID)
		if err != nil {
			return out, err
		}
		out.NewBalance = bal
		return out, nil
	}

	res, err := s.Award(ctx, userID, out.Awarded, models.KindEarn,
		fmt.Sprintf("run %.2f km", distanceKm),
		models.Metadata{"distance_km": distanceKm, "duration_seconds": durationSeconds, "reward": out.Reward, "capped": out.Capped})
	if err != nil {
		return out, err
	}
	out.NewBalance = res.NewBalance
	out.HistoryErr = res.HistoryErr
	dc.EarnedToday += out.Awarded
	dc.Remaining -= out.Awarded
	dc.CanEarn = dc.Remaining > 0
	out.DailyCap = dc
	return out, nil
}
