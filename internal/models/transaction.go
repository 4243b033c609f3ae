package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type TransactionKind string

const (
	KindEarn     TransactionKind = "earn"
	KindBonus    TransactionKind = "bonus"
	KindReferral TransactionKind = "referral"
	KindSpend    TransactionKind = "spend"
	KindRent     TransactionKind = "rent"
	KindRefund   TransactionKind = "refund"
	KindPenalty  TransactionKind = "penalty"
)

// EarningKinds are the kinds counted against the daily cap.
var EarningKinds = []TransactionKind{KindEarn, KindBonus, KindReferral}

func (k TransactionKind) Valid() bool {
	switch k {
	case KindEarn, KindBonus, KindReferral, KindSpend, KindRent, KindRefund, KindPenalty:
		return true
	}
	return false
}

// Transaction is an immutable history entry for one balance mutation.
// Amount is signed: positive for credits, negative for debits.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      int64           `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Description string          `json:"description"`
	Metadata    Metadata        `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Metadata is a free-form JSON object stored in a JSONB column.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("metadata: unsupported scan type")
	}
	return json.Unmarshal(b, m)
}
