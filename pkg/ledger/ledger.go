// Package ledger is the single authority on who currently holds first claim
// on a book copy. Copy status and holder columns are only ever written here.
//
// Every mutation is a conditional UPDATE keyed on the expected prior status,
// so a single Acquire or Release is atomic on its own. Composite
// check-then-act sequences (a borrow's reservation-priority check, the
// promotion cascade after a return) run inside WithCopyLock so that two
// concurrent flows for the same copy can't interleave.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Holder identifies who a copy is being acquired for: a borrower directly,
// or a reservation holding the copy for pickup.
type Holder struct {
	Type          string
	UserID        int
	ReservationID *int
}

// BorrowerHolder returns a Holder for a direct borrow.
func BorrowerHolder(userID int) Holder {
	return Holder{Type: models.HolderTypeBorrower, UserID: userID}
}

// ReservationHolder returns a Holder for a reservation hold.
func ReservationHolder(userID, reservationID int) Holder {
	return Holder{Type: models.HolderTypeReservation, UserID: userID, ReservationID: &reservationID}
}

type Service struct {
	db    *bun.DB
	locks *keyLock
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, locks: newKeyLock()}
}

// WithCopyLock runs fn while holding the mutex for the given copy. All
// engine flows that read copy state and then mutate it go through here.
func (svc *Service) WithCopyLock(copyID int, fn func() error) error {
	svc.locks.lock(copyID)
	defer svc.locks.unlock(copyID)
	return fn()
}

// RetrieveCopy loads the copy's current ledger state.
func (svc *Service) RetrieveCopy(ctx context.Context, copyID int) (*models.BookCopy, error) {
	bookCopy := &models.BookCopy{}
	err := svc.db.
		NewSelect().
		Model(bookCopy).
		Where("bc.id = ?", copyID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book copy")
		}
		return nil, errors.WithStack(err)
	}
	return bookCopy, nil
}

// Acquire transitions an available copy to the target status (borrowed or
// reserved) and records the holder. If the copy isn't available it fails
// with CopyUnavailable carrying the current status and holder.
func (svc *Service) Acquire(ctx context.Context, copyID int, holder Holder, target string) error {
	if target != models.CopyStatusBorrowed && target != models.CopyStatusReserved {
		return errors.Errorf("ledger: invalid acquire target %q", target)
	}

	res, err := svc.db.
		NewUpdate().
		Model((*models.BookCopy)(nil)).
		Set("status = ?", target).
		Set("holder_type = ?", holder.Type).
		Set("holder_user_id = ?", holder.UserID).
		Set("holder_reservation_id = ?", holder.ReservationID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", copyID).
		Where("status = ?", models.CopyStatusAvailable).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if rows == 0 {
		bookCopy, err := svc.RetrieveCopy(ctx, copyID)
		if err != nil {
			return err
		}
		return errcodes.CopyUnavailable(bookCopy.Status, bookCopy.HolderType, bookCopy.HolderUserID)
	}

	return nil
}

// Release transitions a borrowed or reserved copy back to available and
// clears the holder record. Releasing a copy that's already available is a
// no-op, so a double release never cascades a spurious promotion. Copies in
// maintenance or lost stay where they are; they re-enter circulation only
// through ReturnToCirculation.
func (svc *Service) Release(ctx context.Context, copyID int) error {
	res, err := svc.db.
		NewUpdate().
		Model((*models.BookCopy)(nil)).
		Set("status = ?", models.CopyStatusAvailable).
		Set("holder_type = NULL").
		Set("holder_user_id = NULL").
		Set("holder_reservation_id = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", copyID).
		Where("status IN (?, ?)", models.CopyStatusBorrowed, models.CopyStatusReserved).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if rows == 0 {
		// Distinguish a missing copy from an idempotent no-op.
		if _, err := svc.RetrieveCopy(ctx, copyID); err != nil {
			return err
		}
	}

	return nil
}

// Convert hands a reserved copy over to the reservation's user as an open
// borrow. It requires the copy to be held by exactly the given reservation.
func (svc *Service) Convert(ctx context.Context, copyID, reservationID int, holder Holder) error {
	res, err := svc.db.
		NewUpdate().
		Model((*models.BookCopy)(nil)).
		Set("status = ?", models.CopyStatusBorrowed).
		Set("holder_type = ?", holder.Type).
		Set("holder_user_id = ?", holder.UserID).
		Set("holder_reservation_id = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", copyID).
		Where("status = ?", models.CopyStatusReserved).
		Where("holder_reservation_id = ?", reservationID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if rows == 0 {
		if _, err := svc.RetrieveCopy(ctx, copyID); err != nil {
			return err
		}
		return errcodes.InvalidState("Copy is not held by this reservation.")
	}

	return nil
}

// SetOutOfCirculation is the staff override that pulls a copy out of the
// normal acquire/release cycle (maintenance or lost). Any holder is cleared;
// open borrowings or reservations for the copy are the caller's problem to
// settle first.
func (svc *Service) SetOutOfCirculation(ctx context.Context, copyID int, status string) error {
	if status != models.CopyStatusMaintenance && status != models.CopyStatusLost {
		return errors.Errorf("ledger: invalid out-of-circulation status %q", status)
	}

	res, err := svc.db.
		NewUpdate().
		Model((*models.BookCopy)(nil)).
		Set("status = ?", status).
		Set("holder_type = NULL").
		Set("holder_user_id = NULL").
		Set("holder_reservation_id = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", copyID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if rows == 0 {
		return errcodes.NotFound("Book copy")
	}

	return nil
}

// ReturnToCirculation brings a maintenance or lost copy back to available.
func (svc *Service) ReturnToCirculation(ctx context.Context, copyID int) error {
	res, err := svc.db.
		NewUpdate().
		Model((*models.BookCopy)(nil)).
		Set("status = ?", models.CopyStatusAvailable).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", copyID).
		Where("status IN (?, ?)", models.CopyStatusMaintenance, models.CopyStatusLost).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if rows == 0 {
		if _, err := svc.RetrieveCopy(ctx, copyID); err != nil {
			return err
		}
		return errcodes.InvalidState("Copy is not out of circulation.")
	}

	return nil
}
