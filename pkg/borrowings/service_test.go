package borrowings

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorrow(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)
	assert.NotZero(t, borrowing.ID)
	assert.Equal(t, models.BorrowingStatusBorrowed, borrowing.Status)
	assert.WithinDuration(t, borrowing.BorrowDate.AddDate(0, 0, 14), borrowing.DueDate, time.Second)

	bookCopy, err := tc.ledgerService.RetrieveCopy(ctx, tc.copies[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CopyStatusBorrowed, bookCopy.Status)
	require.NotNil(t, bookCopy.HolderUserID)
	assert.Equal(t, 1, *bookCopy.HolderUserID)
}

func TestBorrowUnavailableCopy(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	_, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)

	_, err = tc.service.Borrow(ctx, tc.copies[0].ID, 2, models.BorrowerTypeStudent)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "copy_unavailable", target.Code)
}

func TestBorrowNoDoubleLendingUnderContention(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	const contenders = 10

	var wg sync.WaitGroup
	var successes atomic.Int32

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			_, err := tc.service.Borrow(ctx, tc.copies[0].ID, userID, models.BorrowerTypeStudent)
			if err == nil {
				successes.Add(1)
			}
		}(i + 1)
	}

	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())

	open, err := tc.db.NewSelect().
		Model((*models.Borrowing)(nil)).
		Where("copy_id = ?", tc.copies[0].ID).
		Where("status = ?", models.BorrowingStatusBorrowed).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, open)
}

func TestBorrowLimitExceeded(t *testing.T) {
	tc := newTestContext(t, 4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := tc.service.Borrow(ctx, tc.copies[i].ID, 1, models.BorrowerTypeStudent)
		require.NoError(t, err)
	}

	_, err := tc.service.Borrow(ctx, tc.copies[3].ID, 1, models.BorrowerTypeStudent)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "limit_exceeded", target.Code)

	// A returned loan frees a slot.
	borrowings, err := tc.service.ListBorrowings(ctx, ListBorrowingsOptions{BorrowerID: pointerutil.Int(1)})
	require.NoError(t, err)
	_, err = tc.service.Return(ctx, borrowings[0].ID, nil)
	require.NoError(t, err)

	_, err = tc.service.Borrow(ctx, tc.copies[3].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)
}

func TestBorrowInactiveLibrary(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	_, err := tc.db.NewUpdate().
		Model(tc.library).
		Set("status = ?", models.LibraryStatusInactive).
		WherePK().
		Exec(ctx)
	require.NoError(t, err)

	_, err = tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "policy_error", target.Code)
}

func TestBorrowBlockedByAnotherUsersReservation(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()
	now := time.Now()

	// A live queued reservation for user 2, even with the copy available.
	reservation := &models.Reservation{
		CreatedAt:       now,
		UpdatedAt:       now,
		CopyID:          tc.copies[0].ID,
		UserID:          2,
		UserType:        models.BorrowerTypeStudent,
		ReservationDate: now,
		ExpiryDate:      now.AddDate(0, 0, 3),
		Status:          models.ReservationStatusPending,
	}
	_, err := tc.db.NewInsert().Model(reservation).Exec(ctx)
	require.NoError(t, err)

	_, err = tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "reserved_by_other", target.Code)
}

func TestBorrowOwnReservationRedirectsToFulfill(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()
	now := time.Now()

	reservation := &models.Reservation{
		CreatedAt:       now,
		UpdatedAt:       now,
		CopyID:          tc.copies[0].ID,
		UserID:          1,
		UserType:        models.BorrowerTypeStudent,
		ReservationDate: now,
		ExpiryDate:      now.AddDate(0, 0, 3),
		Status:          models.ReservationStatusPending,
	}
	_, err := tc.db.NewInsert().Model(reservation).Exec(ctx)
	require.NoError(t, err)

	_, err = tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "invalid_state", target.Code)
}

func TestReturnOnTime(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)

	returned, err := tc.service.Return(ctx, borrowing.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusReturned, returned.Status)
	assert.NotNil(t, returned.ReturnDate)
	assert.Equal(t, float64(0), returned.FineAmount)

	bookCopy, err := tc.ledgerService.RetrieveCopy(ctx, tc.copies[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CopyStatusAvailable, bookCopy.Status)
	assert.Nil(t, bookCopy.HolderType)
}

func TestReturnLateComputesFine(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)
	backdateDueDate(t, tc.db, borrowing.ID, 6)

	returned, err := tc.service.Return(ctx, borrowing.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(12), returned.FineAmount)
	assert.False(t, returned.FinePaid)
}

func TestReturnAlreadyReturned(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)

	_, err = tc.service.Return(ctx, borrowing.ID, nil)
	require.NoError(t, err)

	_, err = tc.service.Return(ctx, borrowing.ID, nil)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "invalid_state", target.Code)
}

func TestReturnDateBeforeBorrowDateRejected(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)

	early := borrowing.BorrowDate.AddDate(0, 0, -30)
	_, err = tc.service.Return(ctx, borrowing.ID, &early)
	require.Error(t, err)

	target := &errcodes.Error{}
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "invalid_state", target.Code)

	// Still open; the copy stays with the borrower.
	got, err := tc.service.RetrieveBorrowing(ctx, RetrieveBorrowingOptions{ID: &borrowing.ID})
	require.NoError(t, err)
	assert.Nil(t, got.ReturnDate)
	assert.Equal(t, models.BorrowingStatusBorrowed, got.Status)

	bookCopy, err := tc.ledgerService.RetrieveCopy(ctx, tc.copies[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CopyStatusBorrowed, bookCopy.Status)
}

func TestReturnMissingBorrowing(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	_, err := tc.service.Return(ctx, 9999, nil)
	assert.ErrorIs(t, err, errcodes.NotFound("Borrowing"))
}

func TestReturnWorksForInactiveLibrary(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)

	_, err = tc.db.NewUpdate().
		Model(tc.library).
		Set("status = ?", models.LibraryStatusInactive).
		WherePK().
		Exec(ctx)
	require.NoError(t, err)

	_, err = tc.service.Return(ctx, borrowing.ID, nil)
	require.NoError(t, err)
}

func TestReturnPromotesNextReservation(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)

	reservation, err := tc.service.reservationService.Reserve(ctx, tc.copies[0].ID, 2, models.BorrowerTypeStudent, nil)
	require.NoError(t, err)

	_, err = tc.service.Return(ctx, borrowing.ID, nil)
	require.NoError(t, err)

	// The copy skips "available" and goes straight to the head of the queue.
	bookCopy, err := tc.ledgerService.RetrieveCopy(ctx, tc.copies[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CopyStatusReserved, bookCopy.Status)
	require.NotNil(t, bookCopy.HolderReservationID)
	assert.Equal(t, reservation.ID, *bookCopy.HolderReservationID)
}

func TestMarkLost(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)
	backdateDueDate(t, tc.db, borrowing.ID, 3)

	lost, err := tc.service.MarkLost(ctx, borrowing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusLost, lost.Status)
	assert.Equal(t, float64(6), lost.FineAmount)

	bookCopy, err := tc.ledgerService.RetrieveCopy(ctx, tc.copies[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CopyStatusLost, bookCopy.Status)
	assert.Nil(t, bookCopy.HolderType)
}

func TestMarkFinePaid(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)
	backdateDueDate(t, tc.db, borrowing.ID, 6)

	returned, err := tc.service.Return(ctx, borrowing.ID, nil)
	require.NoError(t, err)
	require.Equal(t, float64(12), returned.FineAmount)

	paid, err := tc.service.MarkFinePaid(ctx, borrowing.ID)
	require.NoError(t, err)
	assert.True(t, paid.FinePaid)
	assert.Equal(t, float64(12), paid.FineAmount)

	_, err = tc.service.MarkFinePaid(ctx, borrowing.ID)
	require.Error(t, err)
}

func TestMarkFinePaidNothingOwed(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)

	_, err = tc.service.MarkFinePaid(ctx, borrowing.ID)
	require.Error(t, err)
}

func TestRetrieveDerivesOverdueAndFine(t *testing.T) {
	tc := newTestContext(t, 1)
	ctx := context.Background()

	borrowing, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)
	backdateDueDate(t, tc.db, borrowing.ID, 2)

	// No sweep has run; the read still reports overdue and the accrued fine.
	got, err := tc.service.RetrieveBorrowing(ctx, RetrieveBorrowingOptions{ID: &borrowing.ID})
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusOverdue, got.Status)
	assert.Equal(t, float64(4), got.FineAmount)

	// The stored row is untouched.
	stored, err := tc.service.retrieveStored(ctx, borrowing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusBorrowed, stored.Status)
}

func TestSweepOverduePersistsStatus(t *testing.T) {
	tc := newTestContext(t, 2)
	ctx := context.Background()

	late, err := tc.service.Borrow(ctx, tc.copies[0].ID, 1, models.BorrowerTypeStudent)
	require.NoError(t, err)
	backdateDueDate(t, tc.db, late.ID, 1)

	_, err = tc.service.Borrow(ctx, tc.copies[1].ID, 2, models.BorrowerTypeStudent)
	require.NoError(t, err)

	marked, err := tc.service.SweepOverdue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	stored, err := tc.service.retrieveStored(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BorrowingStatusOverdue, stored.Status)

	// Running it again finds nothing new.
	marked, err = tc.service.SweepOverdue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, marked)
}
