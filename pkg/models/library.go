package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Library status constants.
const (
	LibraryStatusActive      = "active"
	LibraryStatusInactive    = "inactive"
	LibraryStatusMaintenance = "maintenance"
)

type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:l"`

	ID                  int        `bun:",pk,nullzero" json:"id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Name                string     `bun:",nullzero" json:"name"`
	Status              string     `bun:",nullzero,default:'active'" json:"status"`
	MaxBorrowLimit      int        `json:"max_borrow_limit"`
	BorrowDurationDays  int        `bun:",nullzero" json:"borrow_duration_days"`
	FinePerDay          float64    `json:"fine_per_day"`
	ReservationHoldDays int        `bun:",nullzero" json:"reservation_hold_days"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
}

// Policy is the subset of library configuration consumed by the circulation
// and reservation engines.
type Policy struct {
	MaxBorrowLimit      int     `json:"max_borrow_limit"`
	BorrowDurationDays  int     `json:"borrow_duration_days"`
	FinePerDay          float64 `json:"fine_per_day"`
	ReservationHoldDays int     `json:"reservation_hold_days"`
}

func (l *Library) Policy() Policy {
	return Policy{
		MaxBorrowLimit:      l.MaxBorrowLimit,
		BorrowDurationDays:  l.BorrowDurationDays,
		FinePerDay:          l.FinePerDay,
		ReservationHoldDays: l.ReservationHoldDays,
	}
}
