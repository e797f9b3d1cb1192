package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Reservation status constants. Fulfilled, expired, and cancelled are
// terminal.
const (
	ReservationStatusPending   = "pending"
	ReservationStatusFulfilled = "fulfilled"
	ReservationStatusExpired   = "expired"
	ReservationStatusCancelled = "cancelled"
)

type Reservation struct {
	bun.BaseModel `bun:"table:reservations,alias:r"`

	ID              int        `bun:",pk,nullzero" json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CopyID          int        `bun:",nullzero" json:"copy_id"`
	Copy            *BookCopy  `bun:"rel:belongs-to,join:copy_id=id" json:"copy,omitempty"`
	UserID          int        `bun:",nullzero" json:"user_id"`
	UserType        string     `bun:",nullzero" json:"user_type"`
	ReservationDate time.Time  `bun:",nullzero" json:"reservation_date"`
	ExpiryDate      time.Time  `bun:",nullzero" json:"expiry_date"`
	Status          string     `bun:",nullzero" json:"status"`
	FulfilledAt     *time.Time `json:"fulfilled_at"`
	Notes           *string    `json:"notes"`
}

// EffectiveStatus derives the status at the given time. A stored "pending"
// past its expiry date reads as expired even before a sweep persists the
// transition.
func (r *Reservation) EffectiveStatus(now time.Time) string {
	if r.Status == ReservationStatusPending && now.After(r.ExpiryDate) {
		return ReservationStatusExpired
	}
	return r.Status
}
