package borrowings

import (
	"time"

	"github.com/campuskeep/circulate/pkg/models"
)

// ComputeFine returns the fine owed on a borrowing at the given time: whole
// days past the due date times the library's per-day rate. Partial days
// don't count and the result is never negative. For a returned borrowing
// the clock stopped at the return date.
func ComputeFine(borrowing *models.Borrowing, policy models.Policy, now time.Time) float64 {
	end := now
	if borrowing.ReturnDate != nil {
		end = *borrowing.ReturnDate
	}

	if !end.After(borrowing.DueDate) {
		return 0
	}

	daysLate := int(end.Sub(borrowing.DueDate).Hours() / 24)
	if daysLate <= 0 {
		return 0
	}

	return float64(daysLate) * policy.FinePerDay
}
