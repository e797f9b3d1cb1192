package reservations

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/libraries"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/campuskeep/circulate/pkg/notifications"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveReservationOptions struct {
	ID          *int
	IncludeCopy bool
}

type ListReservationsOptions struct {
	Limit  *int
	Offset *int
	CopyID *int
	UserID *int
	Status *string

	includeTotal bool
}

type Service struct {
	db             *bun.DB
	ledgerService  *ledger.Service
	libraryService *libraries.Service
	dispatcher     notifications.Dispatcher
}

func NewService(db *bun.DB, ledgerService *ledger.Service, dispatcher notifications.Dispatcher) *Service {
	return &Service{
		db:             db,
		ledgerService:  ledgerService,
		libraryService: libraries.NewService(db),
		dispatcher:     dispatcher,
	}
}

// Reserve queues a pending reservation for an unavailable copy. The queue is
// first come, first served by reservation date. Nothing changes on the
// ledger here; the head of the queue gets the copy only when PromoteNext
// runs after a release.
func (svc *Service) Reserve(ctx context.Context, copyID, userID int, userType string, notes *string) (*models.Reservation, error) {
	policy, err := svc.libraryService.ResolvePolicyForCopy(ctx, copyID, false)
	if err != nil {
		return nil, err
	}

	reservation := &models.Reservation{}

	err = svc.ledgerService.WithCopyLock(copyID, func() error {
		bookCopy, err := svc.ledgerService.RetrieveCopy(ctx, copyID)
		if err != nil {
			return err
		}

		switch bookCopy.Status {
		case models.CopyStatusAvailable:
			return errcodes.InvalidState("Copy is available; borrow it instead of reserving.")
		case models.CopyStatusMaintenance, models.CopyStatusLost:
			return errcodes.CopyUnavailable(bookCopy.Status, nil, nil)
		}

		now := time.Now()

		duplicate, err := svc.db.
			NewSelect().
			Model((*models.Reservation)(nil)).
			Where("r.copy_id = ?", copyID).
			Where("r.user_id = ?", userID).
			Where("r.status = ?", models.ReservationStatusPending).
			Where("r.expiry_date > ?", now).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if duplicate {
			return errcodes.Conflict("You already have a pending reservation for this copy.")
		}

		*reservation = models.Reservation{
			CreatedAt:       now,
			UpdatedAt:       now,
			CopyID:          copyID,
			UserID:          userID,
			UserType:        userType,
			ReservationDate: now,
			ExpiryDate:      now.AddDate(0, 0, policy.ReservationHoldDays),
			Status:          models.ReservationStatusPending,
			Notes:           notes,
		}

		_, err = svc.db.
			NewInsert().
			Model(reservation).
			Returning("*").
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	return reservation, nil
}

func (svc *Service) RetrieveReservation(ctx context.Context, opts RetrieveReservationOptions) (*models.Reservation, error) {
	reservation := &models.Reservation{}

	q := svc.db.
		NewSelect().
		Model(reservation)

	if opts.ID != nil {
		q = q.Where("r.id = ?", *opts.ID)
	}
	if opts.IncludeCopy {
		q = q.Relation("Copy")
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Reservation")
		}
		return nil, errors.WithStack(err)
	}

	// Lapsed pending entries read as expired even before a sweep runs.
	reservation.Status = reservation.EffectiveStatus(time.Now())

	return reservation, nil
}

func (svc *Service) ListReservations(ctx context.Context, opts ListReservationsOptions) ([]*models.Reservation, error) {
	r, _, err := svc.listReservationsWithTotal(ctx, opts)
	return r, errors.WithStack(err)
}

func (svc *Service) ListReservationsWithTotal(ctx context.Context, opts ListReservationsOptions) ([]*models.Reservation, int, error) {
	opts.includeTotal = true
	return svc.listReservationsWithTotal(ctx, opts)
}

func (svc *Service) listReservationsWithTotal(ctx context.Context, opts ListReservationsOptions) ([]*models.Reservation, int, error) {
	reservations := []*models.Reservation{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&reservations).
		Order("r.reservation_date ASC", "r.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.CopyID != nil {
		q = q.Where("r.copy_id = ?", *opts.CopyID)
	}
	if opts.UserID != nil {
		q = q.Where("r.user_id = ?", *opts.UserID)
	}
	if opts.Status != nil {
		q = q.Where("r.status = ?", *opts.Status)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	now := time.Now()
	for _, reservation := range reservations {
		reservation.Status = reservation.EffectiveStatus(now)
	}

	return reservations, total, nil
}

// HeadPending returns the oldest live pending reservation for the copy, or
// nil when the queue is empty. Callers hold the copy lock.
func (svc *Service) HeadPending(ctx context.Context, copyID int, now time.Time) (*models.Reservation, error) {
	reservation := &models.Reservation{}
	err := svc.db.
		NewSelect().
		Model(reservation).
		Where("r.copy_id = ?", copyID).
		Where("r.status = ?", models.ReservationStatusPending).
		Where("r.expiry_date > ?", now).
		Order("r.reservation_date ASC", "r.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return reservation, nil
}

// PromoteNext hands a freshly released copy to the oldest live pending
// reservation: the copy is acquired for it on the ledger, its pickup window
// restarts, and the user is told to come get it. Lapsed entries at the head
// of the queue are expired and skipped. A no-op when the copy isn't
// available or the queue is empty, so releasing an already-available copy
// can never cascade a second promotion.
func (svc *Service) PromoteNext(ctx context.Context, copyID int) error {
	return svc.ledgerService.WithCopyLock(copyID, func() error {
		return svc.promoteNextLocked(ctx, copyID)
	})
}

func (svc *Service) promoteNextLocked(ctx context.Context, copyID int) error {
	now := time.Now()

	pending := []*models.Reservation{}
	err := svc.db.
		NewSelect().
		Model(&pending).
		Where("r.copy_id = ?", copyID).
		Where("r.status = ?", models.ReservationStatusPending).
		Order("r.reservation_date ASC", "r.id ASC").
		Scan(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, reservation := range pending {
		if reservation.EffectiveStatus(now) == models.ReservationStatusExpired {
			if err := svc.persistExpiry(ctx, reservation, now); err != nil {
				return err
			}
			continue
		}

		holder := ledger.ReservationHolder(reservation.UserID, reservation.ID)
		err := svc.ledgerService.Acquire(ctx, copyID, holder, models.CopyStatusReserved)
		if err != nil {
			// Copy not actually available; nothing to promote.
			target := &errcodes.Error{}
			if errors.As(err, &target) && target.Code == "copy_unavailable" {
				return nil
			}
			return err
		}

		// The pickup window starts when the copy becomes ready, not when
		// the reservation was placed.
		holdDays, err := svc.holdDays(ctx, copyID)
		if err != nil {
			return err
		}
		reservation.ExpiryDate = now.AddDate(0, 0, holdDays)
		reservation.UpdatedAt = now
		_, err = svc.db.
			NewUpdate().
			Model(reservation).
			Column("expiry_date", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		svc.dispatcher.Notify(ctx, notifications.Event{
			Type:          notifications.EventCopyReady,
			UserID:        reservation.UserID,
			CopyID:        copyID,
			ReservationID: &reservation.ID,
			ExpiryDate:    &reservation.ExpiryDate,
		})
		return nil
	}

	return nil
}

func (svc *Service) holdDays(ctx context.Context, copyID int) (int, error) {
	policy, err := svc.libraryService.ResolvePolicyForCopy(ctx, copyID, true)
	if err != nil {
		return 0, err
	}
	return policy.ReservationHoldDays, nil
}

// Fulfill converts a promoted reservation into an open borrowing: the
// reserved copy is handed over on the ledger, the reservation closes as
// fulfilled, and a borrowing with a fresh due date opens for the same user.
func (svc *Service) Fulfill(ctx context.Context, reservationID int) (*models.Borrowing, error) {
	reservation, err := svc.RetrieveReservation(ctx, RetrieveReservationOptions{ID: &reservationID})
	if err != nil {
		return nil, err
	}

	policy, err := svc.libraryService.ResolvePolicyForCopy(ctx, reservation.CopyID, true)
	if err != nil {
		return nil, err
	}

	borrowing := &models.Borrowing{}

	err = svc.ledgerService.WithCopyLock(reservation.CopyID, func() error {
		now := time.Now()

		// Re-read under the lock; the queue may have moved.
		err := svc.db.
			NewSelect().
			Model(reservation).
			Where("r.id = ?", reservationID).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if reservation.EffectiveStatus(now) != models.ReservationStatusPending {
			return errcodes.InvalidState("Reservation is not pending.")
		}

		// Picking the copy up is still a borrow for limit purposes.
		open, err := svc.countOpenBorrowings(ctx, reservation.UserID)
		if err != nil {
			return err
		}
		if open >= policy.MaxBorrowLimit {
			return errcodes.LimitExceeded(policy.MaxBorrowLimit)
		}

		err = svc.ledgerService.Convert(ctx, reservation.CopyID, reservation.ID, ledger.BorrowerHolder(reservation.UserID))
		if err != nil {
			return err
		}

		reservation.Status = models.ReservationStatusFulfilled
		reservation.FulfilledAt = &now
		reservation.UpdatedAt = now
		_, err = svc.db.
			NewUpdate().
			Model(reservation).
			Column("status", "fulfilled_at", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		*borrowing = models.Borrowing{
			CreatedAt:    now,
			UpdatedAt:    now,
			CopyID:       reservation.CopyID,
			BorrowerID:   reservation.UserID,
			BorrowerType: reservation.UserType,
			BorrowDate:   now,
			DueDate:      now.AddDate(0, 0, policy.BorrowDurationDays),
			Status:       models.BorrowingStatusBorrowed,
		}
		_, err = svc.db.
			NewInsert().
			Model(borrowing).
			Returning("*").
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	return borrowing, nil
}

// Cancel closes a pending reservation. If the copy is being held for it,
// the hold is released and the next reservation in line is promoted.
func (svc *Service) Cancel(ctx context.Context, reservationID int) (*models.Reservation, error) {
	reservation, err := svc.RetrieveReservation(ctx, RetrieveReservationOptions{ID: &reservationID})
	if err != nil {
		return nil, err
	}

	released := false

	err = svc.ledgerService.WithCopyLock(reservation.CopyID, func() error {
		now := time.Now()

		err := svc.db.
			NewSelect().
			Model(reservation).
			Where("r.id = ?", reservationID).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if reservation.Status != models.ReservationStatusPending {
			return errcodes.InvalidState("Only pending reservations can be cancelled.")
		}

		reservation.Status = models.ReservationStatusCancelled
		reservation.UpdatedAt = now
		_, err = svc.db.
			NewUpdate().
			Model(reservation).
			Column("status", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		bookCopy, err := svc.ledgerService.RetrieveCopy(ctx, reservation.CopyID)
		if err != nil {
			return err
		}
		if bookCopy.HolderReservationID != nil && *bookCopy.HolderReservationID == reservation.ID {
			if err := svc.ledgerService.Release(ctx, reservation.CopyID); err != nil {
				return err
			}
			released = true
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if released {
		if err := svc.PromoteNext(ctx, reservation.CopyID); err != nil {
			return nil, err
		}
	}

	return reservation, nil
}

// ExpireDue expires every pending reservation whose window has lapsed,
// releasing held copies and promoting successors. Safe to run repeatedly;
// each pass only touches reservations still stored as pending.
func (svc *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due := []*models.Reservation{}
	err := svc.db.
		NewSelect().
		Model(&due).
		Where("r.status = ?", models.ReservationStatusPending).
		Where("r.expiry_date <= ?", now).
		Order("r.copy_id ASC", "r.reservation_date ASC").
		Scan(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	expired := 0
	promote := []int{}

	for _, reservation := range due {
		err := svc.ledgerService.WithCopyLock(reservation.CopyID, func() error {
			err := svc.db.
				NewSelect().
				Model(reservation).
				Where("r.id = ?", reservation.ID).
				Scan(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			if reservation.Status != models.ReservationStatusPending || reservation.ExpiryDate.After(now) {
				return nil
			}

			if err := svc.persistExpiry(ctx, reservation, now); err != nil {
				return err
			}
			expired++

			bookCopy, err := svc.ledgerService.RetrieveCopy(ctx, reservation.CopyID)
			if err != nil {
				return err
			}
			if bookCopy.HolderReservationID != nil && *bookCopy.HolderReservationID == reservation.ID {
				if err := svc.ledgerService.Release(ctx, reservation.CopyID); err != nil {
					return err
				}
				promote = append(promote, reservation.CopyID)
			}

			return nil
		})
		if err != nil {
			return expired, err
		}
	}

	for _, copyID := range promote {
		if err := svc.PromoteNext(ctx, copyID); err != nil {
			return expired, err
		}
	}

	return expired, nil
}

func (svc *Service) persistExpiry(ctx context.Context, reservation *models.Reservation, now time.Time) error {
	reservation.Status = models.ReservationStatusExpired
	reservation.UpdatedAt = now
	_, err := svc.db.
		NewUpdate().
		Model(reservation).
		Column("status", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	svc.dispatcher.Notify(ctx, notifications.Event{
		Type:          notifications.EventReservationExpired,
		UserID:        reservation.UserID,
		CopyID:        reservation.CopyID,
		ReservationID: &reservation.ID,
	})
	return nil
}

func (svc *Service) countOpenBorrowings(ctx context.Context, userID int) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.Borrowing)(nil)).
		Where("bw.borrower_id = ?", userID).
		Where("bw.status IN (?, ?)", models.BorrowingStatusBorrowed, models.BorrowingStatusOverdue).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
