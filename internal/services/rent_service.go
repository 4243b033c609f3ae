package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/xp-ledger/internal/alert"
	"github.com/baharkarakas/xp-ledger/internal/metrics"
	"github.com/baharkarakas/xp-ledger/internal/models"
	repo "github.com/baharkarakas/xp-ledger/internal/repository"
	"github.com/baharkarakas/xp-ledger/internal/worker"
)

type RentState string

const (
	RentPending       RentState = "pending"
	RentDebitOk       RentState = "debit_ok"
	RentCreditOk      RentState = "credit_ok"
	RentReported      RentState = "reported"
	RentCreditFailed  RentState = "credit_failed"
	RentRefunded      RentState = "refunded"
	RentRefundFailed  RentState = "refund_failed"
	RentCreditUnknown RentState = "credit_unknown" // owner credit timed out, refund withheld
)

// RentTransfer tracks one occupant→owner payment through its states.
type RentTransfer struct {
	ID              string    `json:"id"`
	TerritoryID     string    `json:"territory_id"`
	OccupantID      string    `json:"occupant_id"`
	OwnerID         string    `json:"owner_id"`
	Amount          int64     `json:"amount"`
	State           RentState `json:"state"`
	OccupantBalance int64     `json:"occupant_balance"`
	OwnerBalance    int64     `json:"owner_balance"`
	CreatedAt       time.Time `json:"created_at"`
}

type RentService struct {
	ledger  *LedgerService
	rentals repo.Rentals
	alerts  alert.Alerter
	wp      *worker.Pool
	log     *slog.Logger
}

// NewRentService wires the transfer. wp may be nil, in which case the rental
// report is written inline.
func NewRentService(l *LedgerService, r repo.Rentals, a alert.Alerter, wp *worker.Pool, log *slog.Logger) *RentService {
	if log == nil {
		log = slog.Default()
	}
	if a == nil {
		a = alert.LogAlerter{Log: log}
	}
	return &RentService{ledger: l, rentals: r, alerts: a, wp: wp, log: log}
}

// PayRent moves amount from occupant to owner. The two balance writes are not
// one transaction: a failed owner credit is compensated by refunding the
// occupant, and a failed refund is escalated as a critical inconsistency.
func (s *RentService) PayRent(ctx context.Context, occupantID, ownerID, territoryID string, amount int64) (RentTransfer, error) {
	if occupantID == "" || ownerID == "" {
		return RentTransfer{}, ErrInvalidUser
	}
	if occupantID == ownerID {
		return RentTransfer{}, ErrInvalidTransfer
	}
	if amount <= 0 {
		return RentTransfer{}, ErrInvalidAmount
	}

	rt := RentTransfer{
		ID:          uuid.NewString(),
		TerritoryID: territoryID,
		OccupantID:  occupantID,
		OwnerID:     ownerID,
		Amount:      amount,
		State:       RentPending,
		CreatedAt:   s.ledger.now().UTC(),
	}

	// 0) fast rejection; Spend re-checks atomically
	bal, err := s.ledger.GetBalance(ctx, occupantID)
	if err != nil {
		return rt, err
	}
	if bal < amount {
		rt.OccupantBalance = bal
		return rt, &InsufficientBalanceError{UserID: occupantID, Balance: bal, Requested: amount}
	}

	// 1) debit occupant
	debit, err := s.ledger.Spend(ctx, occupantID, amount, models.KindRent,
		fmt.Sprintf("rent paid for territory %s", territoryID),
		models.Metadata{"rent_id": rt.ID, "territory_id": territoryID, "owner_id": ownerID})
	if err != nil {
		rt.OccupantBalance = debit.NewBalance
		return rt, err
	}
	rt.State = RentDebitOk
	rt.OccupantBalance = debit.NewBalance

	// The occupant has paid; a caller hanging up must not strand the XP.
	ctx = context.WithoutCancel(ctx)

	// 2) credit owner
	credit, err := s.ledger.Award(ctx, ownerID, amount, models.KindRent,
		fmt.Sprintf("rent received for territory %s", territoryID),
		models.Metadata{"rent_id": rt.ID, "territory_id": territoryID, "occupant_id": occupantID})
	if err != nil {
		return s.compensate(ctx, rt, err)
	}
	rt.State = RentCreditOk
	rt.OwnerBalance = credit.NewBalance

	// 3) report
	s.report(rt)
	rt.State = RentReported
	metrics.RentTransfers.WithLabelValues(string(rt.State)).Inc()
	s.log.Info("rent paid", "rent_id", rt.ID, "territory_id", territoryID, "occupant_id", occupantID, "owner_id", ownerID, "amount", amount)
	return rt, nil
}

func (s *RentService) compensate(ctx context.Context, rt RentTransfer, creditErr error) (RentTransfer, error) {
	if errors.Is(creditErr, ErrStoreTimeout) {
		// The owner may already hold the XP; refunding could mint it twice.
		rt.State = RentCreditUnknown
		return rt, s.escalate(ctx, rt, creditErr, nil)
	}

	rt.State = RentCreditFailed
	refund, err := s.ledger.Award(ctx, rt.OccupantID, rt.Amount, models.KindRefund,
		fmt.Sprintf("refund: rent for territory %s could not be delivered", rt.TerritoryID),
		models.Metadata{"rent_id": rt.ID, "territory_id": rt.TerritoryID, "owner_id": rt.OwnerID})
	if err != nil {
		rt.State = RentRefundFailed
		return rt, s.escalate(ctx, rt, creditErr, err)
	}
	rt.State = RentRefunded
	rt.OccupantBalance = refund.NewBalance
	metrics.RentTransfers.WithLabelValues(string(rt.State)).Inc()
	s.log.Warn("rent credit failed, occupant refunded", "rent_id", rt.ID, "occupant_id", rt.OccupantID, "owner_id", rt.OwnerID, "amount", rt.Amount, "err", creditErr)
	return rt, fmt.Errorf("rent not delivered, occupant refunded: %w", creditErr)
}

func (s *RentService) escalate(ctx context.Context, rt RentTransfer, creditErr, refundErr error) error {
	metrics.RentTransfers.WithLabelValues(string(rt.State)).Inc()
	ev := alert.Event{
		Kind:        string(rt.State),
		TerritoryID: rt.TerritoryID,
		OccupantID:  rt.OccupantID,
		OwnerID:     rt.OwnerID,
		Amount:      rt.Amount,
		Cause:       creditErr.Error(),
		At:          s.ledger.now().UTC(),
	}
	if refundErr != nil {
		ev.RefundError = refundErr.Error()
	}
	s.alerts.Critical(ctx, ev)
	return &CriticalInconsistencyError{Transfer: rt, CreditErr: creditErr, RefundErr: refundErr}
}

// report writes the rental row off the request path. Its failure does not
// affect the transfer.
func (s *RentService) report(rt RentTransfer) {
	row := models.Rental{
		ID:          rt.ID,
		TerritoryID: rt.TerritoryID,
		OwnerID:     rt.OwnerID,
		OccupantID:  rt.OccupantID,
		Amount:      rt.Amount,
		CreatedAt:   rt.CreatedAt,
	}
	job := func() {
		ctx, cancel := s.ledger.withTimeout(context.Background())
		defer cancel()
		if err := s.rentals.Create(ctx, row); err != nil {
			s.log.Warn("rental report failed", "rent_id", row.ID, "err", err)
		}
	}
	if s.wp == nil || !s.wp.Submit(job) {
		job()
	}
}
