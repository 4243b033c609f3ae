package models

import "time"

// ReferrerStats are advisory counters, not authoritative balance data.
type ReferrerStats struct {
	UserID      string `json:"user_id"`
	Count       int64  `json:"count"`
	TotalEarned int64  `json:"total_earned"`
}

type ReferralSide string

const (
	SideReferrer ReferralSide = "referrer"
	SideNewUser  ReferralSide = "new_user"
)

// Referral is keyed by the referred user, who can be referred only once.
// Each bonus half is marked paid before it is awarded.
type Referral struct {
	NewUserID    string    `json:"new_user_id"`
	ReferrerID   string    `json:"referrer_id"`
	ReferrerPaid bool      `json:"referrer_paid"`
	NewUserPaid  bool      `json:"new_user_paid"`
	CreatedAt    time.Time `json:"created_at"`
}
