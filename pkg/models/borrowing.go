package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Borrowing status constants. Overdue is a derived view, never trusted from
// storage; it's persisted only by the reporting sweep.
const (
	BorrowingStatusBorrowed = "borrowed"
	BorrowingStatusReturned = "returned"
	BorrowingStatusOverdue  = "overdue"
	BorrowingStatusLost     = "lost"
)

// Borrower type constants.
const (
	BorrowerTypeStudent = "student"
	BorrowerTypeTeacher = "teacher"
	BorrowerTypeStaff   = "staff"
)

type Borrowing struct {
	bun.BaseModel `bun:"table:borrowings,alias:bw"`

	ID           int        `bun:",pk,nullzero" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CopyID       int        `bun:",nullzero" json:"copy_id"`
	Copy         *BookCopy  `bun:"rel:belongs-to,join:copy_id=id" json:"copy,omitempty"`
	BorrowerID   int        `bun:",nullzero" json:"borrower_id"`
	BorrowerType string     `bun:",nullzero" json:"borrower_type"`
	BorrowDate   time.Time  `bun:",nullzero" json:"borrow_date"`
	DueDate      time.Time  `bun:",nullzero" json:"due_date"`
	ReturnDate   *time.Time `json:"return_date"`
	Status       string     `bun:",nullzero" json:"status"`
	FineAmount   float64    `json:"fine_amount"`
	FinePaid     bool       `json:"fine_paid"`
}

// Open reports whether the copy is still out under this borrowing.
func (bw *Borrowing) Open() bool {
	return bw.Status == BorrowingStatusBorrowed || bw.Status == BorrowingStatusOverdue
}

// EffectiveStatus derives the status at the given time. A stored "borrowed"
// past its due date reads as overdue whether or not the reporting sweep has
// persisted the transition.
func (bw *Borrowing) EffectiveStatus(now time.Time) string {
	if bw.Status == BorrowingStatusBorrowed && bw.ReturnDate == nil && now.After(bw.DueDate) {
		return BorrowingStatusOverdue
	}
	return bw.Status
}
