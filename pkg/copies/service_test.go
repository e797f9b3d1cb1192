package copies

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/migrations"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func newTestService(t *testing.T) (*Service, *bun.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewService(db, ledger.NewService(db)), db
}

func seedBook(t *testing.T, db *bun.DB) *models.Book {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	library := &models.Library{
		CreatedAt:           now,
		UpdatedAt:           now,
		Name:                "Main Library",
		Status:              models.LibraryStatusActive,
		MaxBorrowLimit:      3,
		BorrowDurationDays:  14,
		FinePerDay:          2,
		ReservationHoldDays: 3,
	}
	_, err := db.NewInsert().Model(library).Returning("*").Exec(ctx)
	require.NoError(t, err)

	book := &models.Book{
		CreatedAt: now,
		UpdatedAt: now,
		LibraryID: library.ID,
		Title:     "Test Book",
		Author:    "Test Author",
	}
	_, err = db.NewInsert().Model(book).Returning("*").Exec(ctx)
	require.NoError(t, err)

	return book
}

func TestCreateCopy(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, db)

	bookCopy := &models.BookCopy{BookID: book.ID, CopyNumber: 1}
	err := svc.CreateCopy(ctx, bookCopy)
	require.NoError(t, err)
	assert.NotZero(t, bookCopy.ID)
	assert.Equal(t, models.CopyStatusAvailable, bookCopy.Status)
	assert.Equal(t, models.CopyConditionGood, bookCopy.Condition)
}

func TestCreateCopyDuplicateNumber(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, db)

	require.NoError(t, svc.CreateCopy(ctx, &models.BookCopy{BookID: book.ID, CopyNumber: 1}))

	err := svc.CreateCopy(ctx, &models.BookCopy{BookID: book.ID, CopyNumber: 1})
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "conflict", target.Code)
}

func TestCreateCopySameNumberDifferentBooks(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, db)
	other := seedBook(t, db)

	require.NoError(t, svc.CreateCopy(ctx, &models.BookCopy{BookID: book.ID, CopyNumber: 1}))
	require.NoError(t, svc.CreateCopy(ctx, &models.BookCopy{BookID: other.ID, CopyNumber: 1}))
}

func TestCreateCopyMissingBook(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.CreateCopy(ctx, &models.BookCopy{BookID: 9999, CopyNumber: 1})
	assert.ErrorIs(t, err, errcodes.NotFound("Book"))
}

func TestListCopiesByStatus(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, db)

	first := &models.BookCopy{BookID: book.ID, CopyNumber: 1}
	require.NoError(t, svc.CreateCopy(ctx, first))
	second := &models.BookCopy{BookID: book.ID, CopyNumber: 2}
	require.NoError(t, svc.CreateCopy(ctx, second))

	ledgerService := ledger.NewService(db)
	require.NoError(t, ledgerService.Acquire(ctx, first.ID, ledger.BorrowerHolder(1), models.CopyStatusBorrowed))

	available := models.CopyStatusAvailable
	copies, total, err := svc.ListCopiesWithTotal(ctx, ListCopiesOptions{BookID: &book.ID, Status: &available})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, copies, 1)
	assert.Equal(t, second.ID, copies[0].ID)
}

func TestListAvailableAlternatives(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, db)

	first := &models.BookCopy{BookID: book.ID, CopyNumber: 1}
	require.NoError(t, svc.CreateCopy(ctx, first))
	second := &models.BookCopy{BookID: book.ID, CopyNumber: 2}
	require.NoError(t, svc.CreateCopy(ctx, second))

	ledgerService := ledger.NewService(db)
	require.NoError(t, ledgerService.Acquire(ctx, first.ID, ledger.BorrowerHolder(1), models.CopyStatusBorrowed))

	alternatives, err := svc.ListAvailableAlternatives(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, alternatives, 1)
	assert.Equal(t, second.ID, alternatives[0].ID)
}

func TestUpdateCopyRefusesLedgerColumns(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, db)

	bookCopy := &models.BookCopy{BookID: book.ID, CopyNumber: 1}
	require.NoError(t, svc.CreateCopy(ctx, bookCopy))

	err := svc.UpdateCopy(ctx, bookCopy, UpdateCopyOptions{Columns: []string{"status"}})
	require.Error(t, err)

	err = svc.UpdateCopy(ctx, bookCopy, UpdateCopyOptions{Columns: []string{"holder_user_id"}})
	require.Error(t, err)
}

func TestSetStatusMaintenanceAndBack(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, db)

	bookCopy := &models.BookCopy{BookID: book.ID, CopyNumber: 1}
	require.NoError(t, svc.CreateCopy(ctx, bookCopy))

	require.NoError(t, svc.SetStatus(ctx, bookCopy.ID, models.CopyStatusMaintenance))

	got, err := svc.RetrieveCopy(ctx, RetrieveCopyOptions{ID: &bookCopy.ID})
	require.NoError(t, err)
	assert.Equal(t, models.CopyStatusMaintenance, got.Status)

	require.NoError(t, svc.SetStatus(ctx, bookCopy.ID, models.CopyStatusAvailable))

	got, err = svc.RetrieveCopy(ctx, RetrieveCopyOptions{ID: &bookCopy.ID})
	require.NoError(t, err)
	assert.Equal(t, models.CopyStatusAvailable, got.Status)
}

func TestSetStatusRefusesWhileHeld(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, db)

	bookCopy := &models.BookCopy{BookID: book.ID, CopyNumber: 1}
	require.NoError(t, svc.CreateCopy(ctx, bookCopy))

	ledgerService := ledger.NewService(db)
	require.NoError(t, ledgerService.Acquire(ctx, bookCopy.ID, ledger.BorrowerHolder(5), models.CopyStatusBorrowed))

	err := svc.SetStatus(ctx, bookCopy.ID, models.CopyStatusMaintenance)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "conflict", target.Code)
}
