package borrowings

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/libraries"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/campuskeep/circulate/pkg/notifications"
	"github.com/campuskeep/circulate/pkg/reservations"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveBorrowingOptions struct {
	ID          *int
	IncludeCopy bool
}

type ListBorrowingsOptions struct {
	Limit      *int
	Offset     *int
	CopyID     *int
	BorrowerID *int
	Status     *string

	includeTotal bool
}

type Service struct {
	db                 *bun.DB
	ledgerService      *ledger.Service
	libraryService     *libraries.Service
	reservationService *reservations.Service
	dispatcher         notifications.Dispatcher
}

func NewService(db *bun.DB, ledgerService *ledger.Service, dispatcher notifications.Dispatcher) *Service {
	return &Service{
		db:                 db,
		ledgerService:      ledgerService,
		libraryService:     libraries.NewService(db),
		reservationService: reservations.NewService(db, ledgerService, dispatcher),
		dispatcher:         dispatcher,
	}
}

// Borrow opens a loan for a walk-up borrower. Queued reservations take
// priority: if another user holds the next live reservation for the copy
// the borrow is rejected, and if the borrower holds it themselves they're
// sent to fulfill it instead.
func (svc *Service) Borrow(ctx context.Context, copyID, borrowerID int, borrowerType string) (*models.Borrowing, error) {
	policy, err := svc.libraryService.ResolvePolicyForCopy(ctx, copyID, false)
	if err != nil {
		return nil, err
	}

	// The limit check is soft: it reads outside the copy lock, so two
	// borrows racing on different copies can both pass at limit-1.
	open, err := svc.countOpenBorrowings(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	if open >= policy.MaxBorrowLimit {
		return nil, errcodes.LimitExceeded(policy.MaxBorrowLimit)
	}

	borrowing := &models.Borrowing{}

	err = svc.ledgerService.WithCopyLock(copyID, func() error {
		now := time.Now()

		head, err := svc.reservationService.HeadPending(ctx, copyID, now)
		if err != nil {
			return err
		}
		if head != nil {
			if head.UserID == borrowerID {
				return errcodes.InvalidState("You hold the next reservation for this copy; fulfill it instead.")
			}
			return errcodes.ReservedByOther()
		}

		err = svc.ledgerService.Acquire(ctx, copyID, ledger.BorrowerHolder(borrowerID), models.CopyStatusBorrowed)
		if err != nil {
			return err
		}

		*borrowing = models.Borrowing{
			CreatedAt:    now,
			UpdatedAt:    now,
			CopyID:       copyID,
			BorrowerID:   borrowerID,
			BorrowerType: borrowerType,
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

// Return closes an open borrowing: the fine (if any) is computed and
// persisted, the copy goes back on the ledger, and the next queued
// reservation is promoted. Returns keep working when the library is
// inactive.
func (svc *Service) Return(ctx context.Context, borrowingID int, returnDate *time.Time) (*models.Borrowing, error) {
	borrowing, err := svc.retrieveStored(ctx, borrowingID)
	if err != nil {
		return nil, err
	}

	policy, err := svc.libraryService.ResolvePolicyForCopy(ctx, borrowing.CopyID, true)
	if err != nil {
		return nil, err
	}

	err = svc.ledgerService.WithCopyLock(borrowing.CopyID, func() error {
		err := svc.db.
			NewSelect().
			Model(borrowing).
			Where("bw.id = ?", borrowingID).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if !borrowing.Open() {
			return errcodes.InvalidState("Borrowing is already closed.")
		}

		now := time.Now()
		returnedAt := now
		if returnDate != nil {
			returnedAt = *returnDate
		}
		if returnedAt.Before(borrowing.BorrowDate) {
			return errcodes.InvalidState("Return date can't be before the borrow date.")
		}

		borrowing.ReturnDate = &returnedAt
		borrowing.Status = models.BorrowingStatusReturned
		if !borrowing.FinePaid {
			borrowing.FineAmount = ComputeFine(borrowing, policy, returnedAt)
		}
		borrowing.UpdatedAt = now

		_, err = svc.db.
			NewUpdate().
			Model(borrowing).
			Column("return_date", "status", "fine_amount", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		return svc.ledgerService.Release(ctx, borrowing.CopyID)
	})
	if err != nil {
		return nil, err
	}

	if err := svc.reservationService.PromoteNext(ctx, borrowing.CopyID); err != nil {
		return nil, err
	}

	return borrowing, nil
}

// MarkLost closes an open borrowing as lost and pulls the copy out of
// circulation. Any accrued fine is frozen as of now; replacement charges
// are handled outside this system.
func (svc *Service) MarkLost(ctx context.Context, borrowingID int) (*models.Borrowing, error) {
	borrowing, err := svc.retrieveStored(ctx, borrowingID)
	if err != nil {
		return nil, err
	}

	policy, err := svc.libraryService.ResolvePolicyForCopy(ctx, borrowing.CopyID, true)
	if err != nil {
		return nil, err
	}

	err = svc.ledgerService.WithCopyLock(borrowing.CopyID, func() error {
		err := svc.db.
			NewSelect().
			Model(borrowing).
			Where("bw.id = ?", borrowingID).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if !borrowing.Open() {
			return errcodes.InvalidState("Borrowing is already closed.")
		}

		now := time.Now()
		borrowing.Status = models.BorrowingStatusLost
		if !borrowing.FinePaid {
			borrowing.FineAmount = ComputeFine(borrowing, policy, now)
		}
		borrowing.UpdatedAt = now

		_, err = svc.db.
			NewUpdate().
			Model(borrowing).
			Column("status", "fine_amount", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		return svc.ledgerService.SetOutOfCirculation(ctx, borrowing.CopyID, models.CopyStatusLost)
	})
	if err != nil {
		return nil, err
	}

	return borrowing, nil
}

// MarkFinePaid freezes the fine at its current computed value and flags it
// paid. Collection itself happens outside this system.
func (svc *Service) MarkFinePaid(ctx context.Context, borrowingID int) (*models.Borrowing, error) {
	borrowing, err := svc.retrieveStored(ctx, borrowingID)
	if err != nil {
		return nil, err
	}
	if borrowing.FinePaid {
		return nil, errcodes.InvalidState("Fine is already paid.")
	}

	policy, err := svc.libraryService.ResolvePolicyForCopy(ctx, borrowing.CopyID, true)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	fine := ComputeFine(borrowing, policy, now)
	if fine == 0 {
		return nil, errcodes.InvalidState("There is no outstanding fine on this borrowing.")
	}

	borrowing.FineAmount = fine
	borrowing.FinePaid = true
	borrowing.UpdatedAt = now

	_, err = svc.db.
		NewUpdate().
		Model(borrowing).
		Column("fine_amount", "fine_paid", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	borrowing.Status = borrowing.EffectiveStatus(now)
	return borrowing, nil
}

// RetrieveBorrowing loads a borrowing with its derived status and, while
// the fine is unpaid, the fine re-computed against the clock.
func (svc *Service) RetrieveBorrowing(ctx context.Context, opts RetrieveBorrowingOptions) (*models.Borrowing, error) {
	borrowing := &models.Borrowing{}

	q := svc.db.
		NewSelect().
		Model(borrowing)

	if opts.ID != nil {
		q = q.Where("bw.id = ?", *opts.ID)
	}
	if opts.IncludeCopy {
		q = q.Relation("Copy")
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Borrowing")
		}
		return nil, errors.WithStack(err)
	}

	if err := svc.annotate(ctx, borrowing, time.Now()); err != nil {
		return nil, err
	}

	return borrowing, nil
}

func (svc *Service) ListBorrowings(ctx context.Context, opts ListBorrowingsOptions) ([]*models.Borrowing, error) {
	bw, _, err := svc.listBorrowingsWithTotal(ctx, opts)
	return bw, errors.WithStack(err)
}

func (svc *Service) ListBorrowingsWithTotal(ctx context.Context, opts ListBorrowingsOptions) ([]*models.Borrowing, int, error) {
	opts.includeTotal = true
	return svc.listBorrowingsWithTotal(ctx, opts)
}

func (svc *Service) listBorrowingsWithTotal(ctx context.Context, opts ListBorrowingsOptions) ([]*models.Borrowing, int, error) {
	borrowings := []*models.Borrowing{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&borrowings).
		Order("bw.borrow_date DESC", "bw.id DESC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.CopyID != nil {
		q = q.Where("bw.copy_id = ?", *opts.CopyID)
	}
	if opts.BorrowerID != nil {
		q = q.Where("bw.borrower_id = ?", *opts.BorrowerID)
	}
	if opts.Status != nil {
		q = q.Where("bw.status = ?", *opts.Status)
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
	for _, borrowing := range borrowings {
		if err := svc.annotate(ctx, borrowing, now); err != nil {
			return nil, 0, err
		}
	}

	return borrowings, total, nil
}

// SweepOverdue persists the overdue status for reporting and notifies the
// borrowers. Fines never depend on this; they're derived from dates on
// every read.
func (svc *Service) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	due := []*models.Borrowing{}
	err := svc.db.
		NewSelect().
		Model(&due).
		Where("bw.status = ?", models.BorrowingStatusBorrowed).
		Where("bw.return_date IS NULL").
		Where("bw.due_date < ?", now).
		Scan(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	for _, borrowing := range due {
		borrowing.Status = models.BorrowingStatusOverdue
		borrowing.UpdatedAt = now
		_, err := svc.db.
			NewUpdate().
			Model(borrowing).
			Column("status", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return 0, errors.WithStack(err)
		}

		svc.dispatcher.Notify(ctx, notifications.Event{
			Type:        notifications.EventBorrowingOverdue,
			UserID:      borrowing.BorrowerID,
			CopyID:      borrowing.CopyID,
			BorrowingID: &borrowing.ID,
		})
	}

	return len(due), nil
}

// annotate applies the derived views: effective status and, while unpaid
// and the borrowing is still open, the fine recomputed against now.
func (svc *Service) annotate(ctx context.Context, borrowing *models.Borrowing, now time.Time) error {
	borrowing.Status = borrowing.EffectiveStatus(now)

	if !borrowing.FinePaid && borrowing.Open() {
		policy, err := svc.libraryService.ResolvePolicyForCopy(ctx, borrowing.CopyID, true)
		if err != nil {
			return err
		}
		borrowing.FineAmount = ComputeFine(borrowing, policy, now)
	}

	return nil
}

// retrieveStored loads the raw row without derived annotations; mutation
// flows re-read under the copy lock anyway.
func (svc *Service) retrieveStored(ctx context.Context, id int) (*models.Borrowing, error) {
	borrowing := &models.Borrowing{}
	err := svc.db.
		NewSelect().
		Model(borrowing).
		Where("bw.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Borrowing")
		}
		return nil, errors.WithStack(err)
	}
	return borrowing, nil
}

func (svc *Service) countOpenBorrowings(ctx context.Context, borrowerID int) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.Borrowing)(nil)).
		Where("bw.borrower_id = ?", borrowerID).
		Where("bw.status IN (?, ?)", models.BorrowingStatusBorrowed, models.BorrowingStatusOverdue).
		Count(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}
