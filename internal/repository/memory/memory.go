// Package memory provides mutex-guarded in-process repositories. They back the
// "memory" balance backend and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/baharkarakas/xp-ledger/internal/models"
	"github.com/baharkarakas/xp-ledger/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu        sync.RWMutex
	balances  map[string]int64
	txs       []models.Transaction
	rentals   []models.Rental
	referrers map[string]models.ReferrerStats
	referrals map[string]models.Referral
}

func NewStore() *Store {
	return &Store{
		balances:  make(map[string]int64),
		referrers: make(map[string]models.ReferrerStats),
		referrals: make(map[string]models.Referral),
	}
}

// ----------------- Balances -----------------

func (s *Store) Get(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[userID], nil
}

func (s *Store) Credit(_ context.Context, userID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += amount
	return s.balances[userID], nil
}

func (s *Store) Debit(_ context.Context, userID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.balances[userID]
	if cur < amount {
		return cur, repository.ErrInsufficientFunds
	}
	s.balances[userID] = cur - amount
	return s.balances[userID], nil
}

func (s *Store) DebitClamped(_ context.Context, userID string, amount int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.balances[userID]
	after := before - min(before, amount)
	s.balances[userID] = after
	return before, after, nil
}

// SetBalance seeds a balance directly. Only tests and fixtures use it.
func (s *Store) SetBalance(userID string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = amount
}

// ----------------- Transactions -----------------

func (s *Store) Append(_ context.Context, tx models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.txs = append(s.txs, tx)
	return nil
}

func (s *Store) ListByUser(_ context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Transaction
	for _, tx := range s.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SumEarned(_ context.Context, userID string, kinds []models.TransactionKind, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[models.TransactionKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var sum int64
	for _, tx := range s.txs {
		if tx.UserID != userID || tx.Amount <= 0 || !want[tx.Kind] {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		sum += tx.Amount
	}
	return sum, nil
}

// Transactions returns a copy of every appended record.
func (s *Store) Transactions() []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Transaction(nil), s.txs...)
}

// ----------------- Rentals & referrals -----------------

func (s *Store) Create(_ context.Context, rt models.Rental) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	s.rentals = append(s.rentals, rt)
	return nil
}

func (s *Store) Rentals() []models.Rental {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Rental(nil), s.rentals...)
}

func (s *Store) GetStats(_ context.Context, userID string) (models.ReferrerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.referrers[userID]
	if !ok {
		st = models.ReferrerStats{UserID: userID}
	}
	return st, nil
}

func (s *Store) IncrementStats(_ context.Context, userID string, earned int64) (models.ReferrerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.referrers[userID]
	st.UserID = userID
	st.Count++
	st.TotalEarned += earned
	s.referrers[userID] = st
	return st, nil
}

// ----------------- Referrals -----------------

func (s *Store) Claim(_ context.Context, r models.Referral) (models.Referral, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.referrals[r.NewUserID]; ok {
		return cur, false, nil
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.ReferrerPaid, r.NewUserPaid = false, false
	s.referrals[r.NewUserID] = r
	return r, true, nil
}

func (s *Store) MarkPaid(_ context.Context, newUserID string, side models.ReferralSide) (bool, error) {
	return s.setPaid(newUserID, side, true)
}

func (s *Store) UnmarkPaid(_ context.Context, newUserID string, side models.ReferralSide) error {
	_, err := s.setPaid(newUserID, side, false)
	return err
}

func (s *Store) setPaid(newUserID string, side models.ReferralSide, paid bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.referrals[newUserID]
	if !ok {
		return false, nil
	}
	var flag *bool
	switch side {
	case models.SideReferrer:
		flag = &r.ReferrerPaid
	case models.SideNewUser:
		flag = &r.NewUserPaid
	default:
		return false, fmt.Errorf("memory: unknown referral side %q", side)
	}
	if *flag == paid {
		return false, nil
	}
	*flag = paid
	s.referrals[newUserID] = r
	return true, nil
}

var (
	_ repository.Balances     = (*Store)(nil)
	_ repository.Transactions = (*Store)(nil)
	_ repository.Referrals    = (*Store)(nil)
	_ repository.Rentals      = (*Store)(nil)
)
