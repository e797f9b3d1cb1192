package copies

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveCopyOptions struct {
	ID          *int
	IncludeBook bool
}

type ListCopiesOptions struct {
	Limit  *int
	Offset *int
	BookID *int
	Status *string

	includeTotal bool
}

type UpdateCopyOptions struct {
	Columns []string
}

type Service struct {
	db            *bun.DB
	ledgerService *ledger.Service
}

func NewService(db *bun.DB, ledgerService *ledger.Service) *Service {
	return &Service{db, ledgerService}
}

// CreateCopy adds a physical copy to a book. Copy numbers are unique within
// a book; a duplicate fails with Conflict.
func (svc *Service) CreateCopy(ctx context.Context, bookCopy *models.BookCopy) error {
	now := time.Now()
	if bookCopy.CreatedAt.IsZero() {
		bookCopy.CreatedAt = now
	}
	bookCopy.UpdatedAt = bookCopy.CreatedAt
	if bookCopy.Condition == "" {
		bookCopy.Condition = models.CopyConditionGood
	}
	bookCopy.Status = models.CopyStatusAvailable

	exists, err := svc.db.
		NewSelect().
		Model((*models.Book)(nil)).
		Where("b.id = ?", bookCopy.BookID).
		Where("b.deleted_at IS NULL").
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if !exists {
		return errcodes.NotFound("Book")
	}

	_, err = svc.db.
		NewInsert().
		Model(bookCopy).
		Returning("*").
		Exec(ctx)
	if err != nil {
		// The unique index on (book_id, copy_number) is the authority; map
		// its violation to the API-level conflict.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errcodes.Conflict("Copy number already exists for this book.")
		}
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveCopy(ctx context.Context, opts RetrieveCopyOptions) (*models.BookCopy, error) {
	bookCopy := &models.BookCopy{}

	q := svc.db.
		NewSelect().
		Model(bookCopy)

	if opts.ID != nil {
		q = q.Where("bc.id = ?", *opts.ID)
	}
	if opts.IncludeBook {
		q = q.Relation("Book")
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book copy")
		}
		return nil, errors.WithStack(err)
	}

	return bookCopy, nil
}

func (svc *Service) ListCopies(ctx context.Context, opts ListCopiesOptions) ([]*models.BookCopy, error) {
	bc, _, err := svc.listCopiesWithTotal(ctx, opts)
	return bc, errors.WithStack(err)
}

func (svc *Service) ListCopiesWithTotal(ctx context.Context, opts ListCopiesOptions) ([]*models.BookCopy, int, error) {
	opts.includeTotal = true
	return svc.listCopiesWithTotal(ctx, opts)
}

func (svc *Service) listCopiesWithTotal(ctx context.Context, opts ListCopiesOptions) ([]*models.BookCopy, int, error) {
	bookCopies := []*models.BookCopy{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&bookCopies).
		Order("bc.book_id ASC", "bc.copy_number ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.BookID != nil {
		q = q.Where("bc.book_id = ?", *opts.BookID)
	}
	if opts.Status != nil {
		q = q.Where("bc.status = ?", *opts.Status)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return bookCopies, total, nil
}

// ListAvailableAlternatives returns the other available copies of the same
// book, surfaced to callers when the copy they asked about is unavailable.
func (svc *Service) ListAvailableAlternatives(ctx context.Context, copyID int) ([]*models.BookCopy, error) {
	bookCopy, err := svc.RetrieveCopy(ctx, RetrieveCopyOptions{ID: &copyID})
	if err != nil {
		return nil, err
	}

	available := models.CopyStatusAvailable
	alternatives, err := svc.ListCopies(ctx, ListCopiesOptions{
		BookID: &bookCopy.BookID,
		Status: &available,
	})
	if err != nil {
		return nil, err
	}

	filtered := alternatives[:0]
	for _, alt := range alternatives {
		if alt.ID != copyID {
			filtered = append(filtered, alt)
		}
	}
	return filtered, nil
}

// UpdateCopy writes bibliographic-side fields (condition, location). Status
// and holder columns are owned by the ledger and are never updated here.
func (svc *Service) UpdateCopy(ctx context.Context, bookCopy *models.BookCopy, opts UpdateCopyOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	for _, col := range opts.Columns {
		if col == "status" || strings.HasPrefix(col, "holder_") {
			return errors.Errorf("copies: column %q is ledger-owned", col)
		}
	}

	now := time.Now()
	bookCopy.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(bookCopy).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Book copy")
		}
		return errors.WithStack(err)
	}

	return nil
}

// SetStatus is the staff override for pulling a copy out of circulation
// (maintenance, lost) or bringing it back (available). It refuses while a
// borrower or reservation still holds the copy; the open record has to be
// settled first so the audit trail stays consistent.
func (svc *Service) SetStatus(ctx context.Context, copyID int, status string) error {
	return svc.ledgerService.WithCopyLock(copyID, func() error {
		bookCopy, err := svc.ledgerService.RetrieveCopy(ctx, copyID)
		if err != nil {
			return err
		}
		if bookCopy.HolderType != nil {
			return errcodes.Conflict("Copy has an open borrowing or reservation; settle it first.")
		}

		switch status {
		case models.CopyStatusMaintenance, models.CopyStatusLost:
			return svc.ledgerService.SetOutOfCirculation(ctx, copyID, status)
		case models.CopyStatusAvailable:
			return svc.ledgerService.ReturnToCirculation(ctx, copyID)
		default:
			return errcodes.InvalidState("Status can only be set to available, maintenance, or lost.")
		}
	})
}
