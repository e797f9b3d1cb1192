package books

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID            *int
	IncludeCopies bool
}

type ListBooksOptions struct {
	Limit          *int
	Offset         *int
	LibraryID      *int
	IncludeDeleted bool

	includeTotal bool
}

type UpdateBookOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt

	// The owning library must exist and not be deleted.
	exists, err := svc.db.
		NewSelect().
		Model((*models.Library)(nil)).
		Where("l.id = ?", book.LibraryID).
		Where("l.deleted_at IS NULL").
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if !exists {
		return errcodes.NotFound("Library")
	}

	_, err = svc.db.
		NewInsert().
		Model(book).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book)

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.IncludeCopies {
		q = q.Relation("Copies", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("copy_number ASC")
		})
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	b, _, err := svc.listBooksWithTotal(ctx, opts)
	return b, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	books := []*models.Book{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&books).
		Order("b.title ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.LibraryID != nil {
		q = q.Where("b.library_id = ?", *opts.LibraryID)
	}
	if !opts.IncludeDeleted {
		q = q.Where("b.deleted_at IS NULL")
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return books, total, nil
}

func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, opts UpdateBookOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	// Update updated_at.
	now := time.Now()
	book.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(book).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Book")
		}
		return errors.WithStack(err)
	}

	return nil
}

// DeleteBook soft deletes a book. It refuses while any of its copies has an
// open borrowing or a pending reservation.
func (svc *Service) DeleteBook(ctx context.Context, id int) error {
	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return err
	}

	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		openBorrowings, err := tx.
			NewSelect().
			Model((*models.Borrowing)(nil)).
			Join("JOIN book_copies AS bc ON bc.id = bw.copy_id").
			Where("bc.book_id = ?", id).
			Where("bw.status IN (?, ?)", models.BorrowingStatusBorrowed, models.BorrowingStatusOverdue).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if openBorrowings > 0 {
			return errcodes.Conflict("Book has copies that are still borrowed.")
		}

		pendingReservations, err := tx.
			NewSelect().
			Model((*models.Reservation)(nil)).
			Join("JOIN book_copies AS bc ON bc.id = r.copy_id").
			Where("bc.book_id = ?", id).
			Where("r.status = ?", models.ReservationStatusPending).
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if pendingReservations > 0 {
			return errcodes.Conflict("Book has copies with pending reservations.")
		}

		now := time.Now()
		book.DeletedAt = &now
		book.UpdatedAt = now
		_, err = tx.
			NewUpdate().
			Model(book).
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
