// Package testutils exposes seed and reset endpoints for end-to-end test
// runs. The server only registers these when ENVIRONMENT=test.
package testutils

import (
	"net/http"
	"time"

	"github.com/campuskeep/circulate/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type handler struct {
	db *bun.DB
}

func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	h := &handler{db: db}

	e.POST("/test/reset", h.reset)
	e.POST("/test/seed", h.seed)
}

// reset truncates every domain table so each test run starts clean.
func (h *handler) reset(c echo.Context) error {
	ctx := c.Request().Context()

	for _, model := range []interface{}{
		(*models.Borrowing)(nil),
		(*models.Reservation)(nil),
		(*models.Job)(nil),
		(*models.BookCopy)(nil),
		(*models.Book)(nil),
		(*models.Library)(nil),
	} {
		_, err := h.db.NewDelete().Model(model).Where("1=1").Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

// seed creates a small fixture: one library with default policy values, one
// book, and two available copies.
func (h *handler) seed(c echo.Context) error {
	ctx := c.Request().Context()
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
	if _, err := h.db.NewInsert().Model(library).Returning("*").Exec(ctx); err != nil {
		return errors.WithStack(err)
	}

	book := &models.Book{
		CreatedAt: now,
		UpdatedAt: now,
		LibraryID: library.ID,
		Title:     "The Go Programming Language",
		Author:    "Alan A. A. Donovan",
	}
	if _, err := h.db.NewInsert().Model(book).Returning("*").Exec(ctx); err != nil {
		return errors.WithStack(err)
	}

	bookCopies := []*models.BookCopy{}
	for i := 1; i <= 2; i++ {
		bookCopy := &models.BookCopy{
			CreatedAt:  now,
			UpdatedAt:  now,
			BookID:     book.ID,
			CopyNumber: i,
			Condition:  models.CopyConditionGood,
			Status:     models.CopyStatusAvailable,
		}
		if _, err := h.db.NewInsert().Model(bookCopy).Returning("*").Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
		bookCopies = append(bookCopies, bookCopy)
	}

	resp := struct {
		Library *models.Library    `json:"library"`
		Book    *models.Book       `json:"book"`
		Copies  []*models.BookCopy `json:"copies"`
	}{library, book, bookCopies}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
