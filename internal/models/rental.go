package models

import "time"

// Rental is the reporting row written after a completed rent transfer.
// It is informational and never used to reconcile balances.
type Rental struct {
	ID          string    `json:"id"`
	TerritoryID string    `json:"territory_id"`
	OwnerID     string    `json:"owner_id"`
	OccupantID  string    `json:"occupant_id"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}
