package reservations

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/migrations"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/campuskeep/circulate/pkg/notifications"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type testContext struct {
	db            *bun.DB
	ledgerService *ledger.Service
	service       *Service
	library       *models.Library
	copies        []*models.BookCopy
}

func newTestContext(t *testing.T, copyCount int) *testContext {
	t.Helper()
	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(ctx, db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

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
	_, err = db.NewInsert().Model(library).Returning("*").Exec(ctx)
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

	bookCopies := []*models.BookCopy{}
	for i := 1; i <= copyCount; i++ {
		bookCopy := &models.BookCopy{
			CreatedAt:  now,
			UpdatedAt:  now,
			BookID:     book.ID,
			CopyNumber: i,
			Condition:  models.CopyConditionGood,
			Status:     models.CopyStatusAvailable,
		}
		_, err = db.NewInsert().Model(bookCopy).Returning("*").Exec(ctx)
		require.NoError(t, err)
		bookCopies = append(bookCopies, bookCopy)
	}

	ledgerService := ledger.NewService(db)

	return &testContext{
		db:            db,
		ledgerService: ledgerService,
		service:       NewService(db, ledgerService, notifications.NoopDispatcher{}),
		library:       library,
		copies:        bookCopies,
	}
}

// borrowCopy puts a copy out on loan directly so reservation flows have an
// unavailable copy to queue on.
func (tc *testContext) borrowCopy(t *testing.T, copyID, userID int) *models.Borrowing {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	err := tc.ledgerService.Acquire(ctx, copyID, ledger.BorrowerHolder(userID), models.CopyStatusBorrowed)
	require.NoError(t, err)

	borrowing := &models.Borrowing{
		CreatedAt:    now,
		UpdatedAt:    now,
		CopyID:       copyID,
		BorrowerID:   userID,
		BorrowerType: models.BorrowerTypeStudent,
		BorrowDate:   now,
		DueDate:      now.AddDate(0, 0, 14),
		Status:       models.BorrowingStatusBorrowed,
	}
	_, err = tc.db.NewInsert().Model(borrowing).Returning("*").Exec(ctx)
	require.NoError(t, err)

	return borrowing
}

// backdateExpiry rewinds a reservation's expiry so lapse behavior can be
// exercised without waiting.
func backdateExpiry(t *testing.T, db *bun.DB, reservationID, daysAgo int) {
	t.Helper()
	_, err := db.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("expiry_date = ?", time.Now().AddDate(0, 0, -daysAgo)).
		Where("id = ?", reservationID).
		Exec(context.Background())
	require.NoError(t, err)
}
