package libraries

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveLibraryOptions struct {
	ID *int
}

type ListLibrariesOptions struct {
	Limit          *int
	Offset         *int
	Status         *string
	IncludeDeleted bool

	includeTotal bool
}

type UpdateLibraryOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateLibrary(ctx context.Context, library *models.Library) error {
	now := time.Now()
	if library.CreatedAt.IsZero() {
		library.CreatedAt = now
	}
	library.UpdatedAt = library.CreatedAt
	if library.Status == "" {
		library.Status = models.LibraryStatusActive
	}

	_, err := svc.db.
		NewInsert().
		Model(library).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveLibrary(ctx context.Context, opts RetrieveLibraryOptions) (*models.Library, error) {
	library := &models.Library{}

	q := svc.db.
		NewSelect().
		Model(library)

	if opts.ID != nil {
		q = q.Where("l.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Library")
		}
		return nil, errors.WithStack(err)
	}

	return library, nil
}

func (svc *Service) ListLibraries(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, error) {
	l, _, err := svc.listLibrariesWithTotal(ctx, opts)
	return l, errors.WithStack(err)
}

func (svc *Service) ListLibrariesWithTotal(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, int, error) {
	opts.includeTotal = true
	return svc.listLibrariesWithTotal(ctx, opts)
}

func (svc *Service) listLibrariesWithTotal(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, int, error) {
	libraries := []*models.Library{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&libraries).
		Order("l.name ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.Status != nil {
		q = q.Where("l.status = ?", *opts.Status)
	}
	if !opts.IncludeDeleted {
		q = q.Where("l.deleted_at IS NULL")
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return libraries, total, nil
}

func (svc *Service) UpdateLibrary(ctx context.Context, library *models.Library, opts UpdateLibraryOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	// Update updated_at.
	now := time.Now()
	library.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(library).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Library")
		}
		return errors.WithStack(err)
	}

	return nil
}

// DeleteLibrary soft deletes a library. It refuses while any copy under the
// library has an open borrowing or a pending reservation, since deleting the
// library would orphan the circulation records that still point at it.
func (svc *Service) DeleteLibrary(ctx context.Context, id int) error {
	library, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: &id})
	if err != nil {
		return err
	}

	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		openBorrowings, err := tx.
			NewSelect().
			Model((*models.Borrowing)(nil)).
			Join("JOIN book_copies AS bc ON bc.id = bw.copy_id").
			Join("JOIN books AS b ON b.id = bc.book_id").
			Where("b.library_id = ?", id).
			Where("bw.status IN (?, ?)", models.BorrowingStatusBorrowed, models.BorrowingStatusOverdue).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if openBorrowings > 0 {
			return errcodes.Conflict("Library has copies that are still borrowed.")
		}

		pendingReservations, err := tx.
			NewSelect().
			Model((*models.Reservation)(nil)).
			Join("JOIN book_copies AS bc ON bc.id = r.copy_id").
			Join("JOIN books AS b ON b.id = bc.book_id").
			Where("b.library_id = ?", id).
			Where("r.status = ?", models.ReservationStatusPending).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if pendingReservations > 0 {
			return errcodes.Conflict("Library has copies with pending reservations.")
		}

		now := time.Now()
		library.DeletedAt = &now
		library.UpdatedAt = now
		_, err = tx.
			NewUpdate().
			Model(library).
			Column("deleted_at", "updated_at").
			WherePK().
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}

	return nil
}
