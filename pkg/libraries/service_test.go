package libraries

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/migrations"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/robinjoseph08/golib/pointerutil"
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

func seedLibrary(t *testing.T, db *bun.DB, status string) *models.Library {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	library := &models.Library{
		CreatedAt:           now,
		UpdatedAt:           now,
		Name:                "Main Library",
		Status:              status,
		MaxBorrowLimit:      3,
		BorrowDurationDays:  14,
		FinePerDay:          2,
		ReservationHoldDays: 3,
	}
	_, err := db.NewInsert().Model(library).Returning("*").Exec(ctx)
	require.NoError(t, err)
	return library
}

func seedCopyUnder(t *testing.T, db *bun.DB, libraryID int) *models.BookCopy {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	book := &models.Book{
		CreatedAt: now,
		UpdatedAt: now,
		LibraryID: libraryID,
		Title:     "Test Book",
		Author:    "Test Author",
	}
	_, err := db.NewInsert().Model(book).Returning("*").Exec(ctx)
	require.NoError(t, err)

	bookCopy := &models.BookCopy{
		CreatedAt:  now,
		UpdatedAt:  now,
		BookID:     book.ID,
		CopyNumber: 1,
		Condition:  models.CopyConditionGood,
		Status:     models.CopyStatusAvailable,
	}
	_, err = db.NewInsert().Model(bookCopy).Returning("*").Exec(ctx)
	require.NoError(t, err)

	return bookCopy
}

func TestCreateAndRetrieveLibrary(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	library := &models.Library{
		Name:                "Science Library",
		MaxBorrowLimit:      5,
		BorrowDurationDays:  21,
		FinePerDay:          1.5,
		ReservationHoldDays: 2,
	}
	err := svc.CreateLibrary(ctx, library)
	require.NoError(t, err)
	assert.NotZero(t, library.ID)
	assert.Equal(t, models.LibraryStatusActive, library.Status)

	got, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: &library.ID})
	require.NoError(t, err)
	assert.Equal(t, "Science Library", got.Name)
	assert.Equal(t, 5, got.MaxBorrowLimit)
	assert.Equal(t, 1.5, got.FinePerDay)
}

func TestRetrieveLibraryNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: pointerutil.Int(9999)})
	assert.ErrorIs(t, err, errcodes.NotFound("Library"))
}

func TestListLibrariesFiltersDeleted(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	seedLibrary(t, db, models.LibraryStatusActive)
	deleted := seedLibrary(t, db, models.LibraryStatusActive)
	require.NoError(t, svc.DeleteLibrary(ctx, deleted.ID))

	libraries, total, err := svc.ListLibrariesWithTotal(ctx, ListLibrariesOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, libraries, 1)
}

func TestUpdateLibraryPolicyFields(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	library := seedLibrary(t, db, models.LibraryStatusActive)

	library.FinePerDay = 4
	library.MaxBorrowLimit = 1
	err := svc.UpdateLibrary(ctx, library, UpdateLibraryOptions{Columns: []string{"fine_per_day", "max_borrow_limit"}})
	require.NoError(t, err)

	got, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: &library.ID})
	require.NoError(t, err)
	assert.Equal(t, float64(4), got.FinePerDay)
	assert.Equal(t, 1, got.MaxBorrowLimit)
}

func TestDeleteLibraryBlockedByOpenBorrowing(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	library := seedLibrary(t, db, models.LibraryStatusActive)
	bookCopy := seedCopyUnder(t, db, library.ID)

	now := time.Now()
	borrowing := &models.Borrowing{
		CreatedAt:    now,
		UpdatedAt:    now,
		CopyID:       bookCopy.ID,
		BorrowerID:   1,
		BorrowerType: models.BorrowerTypeStudent,
		BorrowDate:   now,
		DueDate:      now.AddDate(0, 0, 14),
		Status:       models.BorrowingStatusBorrowed,
	}
	_, err := db.NewInsert().Model(borrowing).Exec(ctx)
	require.NoError(t, err)

	err = svc.DeleteLibrary(ctx, library.ID)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "conflict", target.Code)
}

func TestDeleteLibraryBlockedByPendingReservation(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	library := seedLibrary(t, db, models.LibraryStatusActive)
	bookCopy := seedCopyUnder(t, db, library.ID)

	now := time.Now()
	reservation := &models.Reservation{
		CreatedAt:       now,
		UpdatedAt:       now,
		CopyID:          bookCopy.ID,
		UserID:          1,
		UserType:        models.BorrowerTypeStudent,
		ReservationDate: now,
		ExpiryDate:      now.AddDate(0, 0, 3),
		Status:          models.ReservationStatusPending,
	}
	_, err := db.NewInsert().Model(reservation).Exec(ctx)
	require.NoError(t, err)

	err = svc.DeleteLibrary(ctx, library.ID)
	require.Error(t, err)
}

func TestResolvePolicyActive(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	library := seedLibrary(t, db, models.LibraryStatusActive)

	policy, err := svc.ResolvePolicy(ctx, library.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, policy.MaxBorrowLimit)
	assert.Equal(t, 14, policy.BorrowDurationDays)
	assert.Equal(t, float64(2), policy.FinePerDay)
	assert.Equal(t, 3, policy.ReservationHoldDays)
}

func TestResolvePolicyInactiveLibrary(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	library := seedLibrary(t, db, models.LibraryStatusInactive)

	_, err := svc.ResolvePolicy(ctx, library.ID)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "policy_error", target.Code)

	// The status-ignoring variant still resolves, for returns and promotions.
	policy, err := svc.ResolvePolicyAnyStatus(ctx, library.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, policy.MaxBorrowLimit)
}

func TestResolvePolicyMissingLibrary(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.ResolvePolicy(ctx, 9999)
	assert.ErrorIs(t, err, errcodes.NotFound("Library"))
}

func TestResolvePolicyForCopy(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	library := seedLibrary(t, db, models.LibraryStatusActive)
	bookCopy := seedCopyUnder(t, db, library.ID)

	policy, err := svc.ResolvePolicyForCopy(ctx, bookCopy.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 14, policy.BorrowDurationDays)

	_, err = svc.ResolvePolicyForCopy(ctx, 9999, false)
	assert.ErrorIs(t, err, errcodes.NotFound("Book copy"))
}

func TestResolvePolicyForCopyDatabaseError(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	require.NoError(t, db.Close())

	// A failed query is not the same thing as a missing copy.
	_, err := svc.ResolvePolicyForCopy(ctx, 1, false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errcodes.NotFound("Book copy"))
}
