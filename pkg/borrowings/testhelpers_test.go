package borrowings

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
	book          *models.Book
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
		book:          book,
		copies:        bookCopies,
	}
}

// backdateDueDate rewinds a borrowing's due date so fine and overdue
// behavior can be exercised without waiting.
func backdateDueDate(t *testing.T, db *bun.DB, borrowingID, daysAgo int) {
	t.Helper()
	_, err := db.NewUpdate().
		Model((*models.Borrowing)(nil)).
		Set("due_date = ?", time.Now().AddDate(0, 0, -daysAgo)).
		Where("id = ?", borrowingID).
		Exec(context.Background())
	require.NoError(t, err)
}
