package worker

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/campuskeep/circulate/pkg/config"
	"github.com/campuskeep/circulate/pkg/jobs"
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/migrations"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/campuskeep/circulate/pkg/notifications"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// testContext holds the dependencies needed for testing the worker.
type testContext struct {
	t             *testing.T
	ctx           context.Context
	db            *bun.DB
	worker        *Worker
	jobService    *jobs.Service
	ledgerService *ledger.Service
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
	cfg := &config.Config{
		WorkerProcesses: 1,
	}
	w := New(cfg, db, ledgerService, notifications.NoopDispatcher{})

	return &testContext{
		t:             t,
		ctx:           logger.New().WithContext(ctx),
		db:            db,
		worker:        w,
		jobService:    jobs.NewService(db),
		ledgerService: ledgerService,
		library:       library,
		copies:        bookCopies,
	}
}

// borrowCopy puts a copy out on loan directly so the sweep jobs have state to
// work against.
func (tc *testContext) borrowCopy(copyID, userID int) *models.Borrowing {
	tc.t.Helper()
	ctx := context.Background()
	now := time.Now()

	err := tc.ledgerService.Acquire(ctx, copyID, ledger.BorrowerHolder(userID), models.CopyStatusBorrowed)
	require.NoError(tc.t, err)

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
	require.NoError(tc.t, err)

	return borrowing
}
