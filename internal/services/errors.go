package services

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount   = errors.New("amount must be > 0")
	ErrInvalidKind     = errors.New("unknown transaction kind")
	ErrInvalidUser     = errors.New("user id required")
	ErrInvalidTransfer = errors.New("occupant and owner must differ")
	ErrInvalidReferral = errors.New("referrer and new user must differ")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyReferred     = errors.New("user already referred")

	// Infrastructure. Callers may retry ErrStoreUnavailable; after
	// ErrStoreTimeout the write may have landed, so re-read the balance first.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreTimeout     = errors.New("store timeout, outcome unknown")

	// ErrLogAppendFailed never fails an operation. It is attached to
	// Result.HistoryErr when the balance write stood but its record was lost.
	ErrLogAppendFailed = errors.New("transaction log append failed")

	ErrCriticalInconsistency = errors.New("critical ledger inconsistency")
)

// InsufficientBalanceError is the business-rule failure for spend and rent.
type InsufficientBalanceError struct {
	UserID    string
	Balance   int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: user %s has %d, needs %d", e.UserID, e.Balance, e.Requested)
}

func (e *InsufficientBalanceError) Shortfall() int64 { return e.Requested - e.Balance }

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// CriticalInconsistencyError means a rent compensation could not restore the
// occupant. It deliberately does not unwrap to the underlying store errors so
// that no caller mistakes it for a retryable failure.
type CriticalInconsistencyError struct {
	Transfer  RentTransfer
	CreditErr error
	RefundErr error
}

func (e *CriticalInconsistencyError) Error() string {
	msg := fmt.Sprintf("critical ledger inconsistency: rent %s state=%s occupant=%s owner=%s amount=%d: credit: %v",
		e.Transfer.ID, e.Transfer.State, e.Transfer.OccupantID, e.Transfer.OwnerID, e.Transfer.Amount, e.CreditErr)
	if e.RefundErr != nil {
		msg += fmt.Sprintf("; refund: %v", e.RefundErr)
	}
	return msg
}

func (e *CriticalInconsistencyError) Is(target error) bool { return target == ErrCriticalInconsistency }

// storeErr classifies a failed store call. A call abandoned by cancellation
// may still have committed, so it is reported like a timeout.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
