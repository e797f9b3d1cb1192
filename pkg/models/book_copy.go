package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Copy status constants. Status is owned by the availability ledger; nothing
// else writes it.
const (
	CopyStatusAvailable   = "available"
	CopyStatusReserved    = "reserved"
	CopyStatusBorrowed    = "borrowed"
	CopyStatusMaintenance = "maintenance"
	CopyStatusLost        = "lost"
)

// Copy condition constants.
const (
	CopyConditionExcellent = "excellent"
	CopyConditionGood      = "good"
	CopyConditionFair      = "fair"
	CopyConditionPoor      = "poor"
	CopyConditionDamaged   = "damaged"
)

// Holder type constants for the ledger's holder record.
const (
	HolderTypeBorrower    = "borrower"
	HolderTypeReservation = "reservation"
)

type BookCopy struct {
	bun.BaseModel `bun:"table:book_copies,alias:bc"`

	ID         int       `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	BookID     int       `bun:",nullzero" json:"book_id"`
	Book       *Book     `bun:"rel:belongs-to" json:"book,omitempty"`
	CopyNumber int       `bun:",nullzero" json:"copy_number"`
	Condition  string    `bun:",nullzero,default:'good'" json:"condition"`
	Location   *string   `json:"location"`
	Status     string    `bun:",nullzero,default:'available'" json:"status"`

	// Holder record, maintained exclusively by the ledger. Set while the copy
	// is borrowed or reserved, cleared otherwise.
	HolderType          *string `json:"holder_type,omitempty"`
	HolderUserID        *int    `json:"holder_user_id,omitempty"`
	HolderReservationID *int    `json:"holder_reservation_id,omitempty"`
}
