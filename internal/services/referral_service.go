package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/baharkarakas/xp-ledger/internal/models"
	repo "github.com/baharkarakas/xp-ledger/internal/repository"
)

type ReferralConfig struct {
	ReferrerBonus int64
	NewUserBonus  int64
}

// ReferralResult reports what this call paid. A half skipped because an
// earlier call already paid it has its Paid flag false and a zero balance.
type ReferralResult struct {
	ReferrerPaid    bool                 `json:"referrer_paid"`
	NewUserPaid     bool                 `json:"new_user_paid"`
	ReferrerBalance int64                `json:"referrer_balance"`
	NewUserBalance  int64                `json:"new_user_balance"`
	Stats           models.ReferrerStats `json:"stats"`
}

// Partial reports whether some XP moved even though the call failed.
func (r ReferralResult) Partial() bool { return r.ReferrerPaid || r.NewUserPaid }

type ReferralService struct {
	ledger *LedgerService
	refs   repo.Referrals
	cfg    ReferralConfig
	log    *slog.Logger
}

func NewReferralService(l *LedgerService, refs repo.Referrals, cfg ReferralConfig, log *slog.Logger) *ReferralService {
	if log == nil {
		log = slog.Default()
	}
	return &ReferralService{ledger: l, refs: refs, cfg: cfg, log: log}
}

// ProcessReferralBonus pays the referrer and the new user once per new user.
// The referral row is claimed first and each half is marked paid before its
// award, so replays and concurrent duplicates pay nothing twice. A half whose
// award failed outright is released and paid by the next call; a half whose
// award timed out stays marked, since its credit may have landed.
func (s *ReferralService) ProcessReferralBonus(ctx context.Context, referrerID, newUserID string) (ReferralResult, error) {
	if referrerID == "" || newUserID == "" {
		return ReferralResult{}, ErrInvalidUser
	}
	if referrerID == newUserID {
		return ReferralResult{}, ErrInvalidReferral
	}
	// once a half is marked it must be awarded or released
	ctx = context.WithoutCancel(ctx)

	ref, err := s.claim(ctx, referrerID, newUserID)
	if err != nil {
		return ReferralResult{}, err
	}
	if ref.ReferrerID != referrerID {
		return ReferralResult{}, fmt.Errorf("%w: %s was referred by %s", ErrAlreadyReferred, newUserID, ref.ReferrerID)
	}
	if ref.ReferrerPaid && ref.NewUserPaid {
		return ReferralResult{}, fmt.Errorf("%w: %s", ErrAlreadyReferred, newUserID)
	}

	var res ReferralResult
	var errs []error

	res.ReferrerBalance, res.ReferrerPaid, err = s.pay(ctx, newUserID, models.SideReferrer,
		referrerID, s.cfg.ReferrerBonus, models.KindReferral, "referral bonus",
		models.Metadata{"referred_user_id": newUserID})
	if err != nil {
		errs = append(errs, err)
	}

	res.NewUserBalance, res.NewUserPaid, err = s.pay(ctx, newUserID, models.SideNewUser,
		newUserID, s.cfg.NewUserBonus, models.KindBonus, "welcome bonus for joining via referral",
		models.Metadata{"referrer_id": referrerID})
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 && !res.Partial() {
		// a concurrent call holds both halves
		return res, fmt.Errorf("%w: %s", ErrAlreadyReferred, newUserID)
	}

	// counters only reflect XP the referrer received in this call
	if res.ReferrerPaid {
		st, err := s.incrementStats(ctx, referrerID)
		if err != nil {
			s.log.Warn("referral: stats update failed", "referrer_id", referrerID, "err", err)
			errs = append(errs, err)
		}
		res.Stats = st
	}
	return res, errors.Join(errs...)
}

func (s *ReferralService) claim(ctx context.Context, referrerID, newUserID string) (models.Referral, error) {
	ctx, cancel := s.ledger.withTimeout(ctx)
	defer cancel()
	ref, created, err := s.refs.Claim(ctx, models.Referral{
		NewUserID:  newUserID,
		ReferrerID: referrerID,
		CreatedAt:  s.ledger.now().UTC(),
	})
	if err != nil {
		return models.Referral{}, storeErr("referral claim", err)
	}
	if created {
		s.log.Info("referral: claimed", "referrer_id", referrerID, "new_user_id", newUserID)
	}
	return ref, nil
}

// pay awards one half. It returns paid=false with no error when the half
// belongs to another call.
func (s *ReferralService) pay(ctx context.Context, newUserID string, side models.ReferralSide,
	userID string, amount int64, kind models.TransactionKind, desc string, meta models.Metadata,
) (int64, bool, error) {
	mctx, cancel := s.ledger.withTimeout(ctx)
	won, err := s.refs.MarkPaid(mctx, newUserID, side)
	cancel()
	if err != nil {
		return 0, false, storeErr("referral mark "+string(side), err)
	}
	if !won {
		return 0, false, nil
	}

	r, err := s.ledger.Award(ctx, userID, amount, kind, desc, meta)
	if err == nil {
		return r.NewBalance, true, nil
	}
	if errors.Is(err, ErrStoreTimeout) {
		s.log.Error("referral: award outcome unknown, half stays marked paid",
			"new_user_id", newUserID, "side", side, "user_id", userID, "amount", amount, "err", err)
		return 0, false, err
	}
	s.log.Error("referral: award failed", "new_user_id", newUserID, "side", side, "user_id", userID, "err", err)

	uctx, cancel := s.ledger.withTimeout(ctx)
	defer cancel()
	if uerr := s.refs.UnmarkPaid(uctx, newUserID, side); uerr != nil {
		s.log.Error("referral: could not release unpaid half",
			"new_user_id", newUserID, "side", side, "err", uerr)
	}
	return 0, false, err
}

func (s *ReferralService) incrementStats(ctx context.Context, referrerID string) (models.ReferrerStats, error) {
	ctx, cancel := s.ledger.withTimeout(ctx)
	defer cancel()
	st, err := s.refs.IncrementStats(ctx, referrerID, s.cfg.ReferrerBonus)
	if err != nil {
		return models.ReferrerStats{}, storeErr("referral stats", err)
	}
	return st, nil
}

func (s *ReferralService) Stats(ctx context.Context, userID string) (models.ReferrerStats, error) {
	if userID == "" {
		return models.ReferrerStats{}, ErrInvalidUser
	}
	ctx, cancel := s.ledger.withTimeout(ctx)
	defer cancel()
	st, err := s.refs.GetStats(ctx, userID)
	if err != nil {
		return models.ReferrerStats{}, storeErr("referral stats", err)
	}
	return st, nil
}
