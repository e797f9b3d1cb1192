package borrowings

import (
	"net/http"
	"strconv"
	"time"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/identity"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	borrowingService *Service
	directory        identity.Directory
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()
	copyID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book copy")
	}

	// Bind params.
	params := CreateBorrowingPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	borrowing, err := h.borrowingService.Borrow(ctx, copyID, params.BorrowerID, params.BorrowerType)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, borrowing))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Borrowing")
	}

	params := RetrieveBorrowingQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	borrowing, err := h.borrowingService.RetrieveBorrowing(ctx, RetrieveBorrowingOptions{
		ID:          &id,
		IncludeCopy: params.IncludeCopy,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		*models.Borrowing
		Borrower *identity.User `json:"borrower,omitempty"`
	}{Borrowing: borrowing}

	// Directory enrichment is best effort; the read succeeds without it.
	if user, err := h.directory.GetUser(ctx, borrowing.BorrowerID); err == nil {
		resp.Borrower = user
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListBorrowingsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	borrowings, total, err := h.borrowingService.ListBorrowingsWithTotal(ctx, ListBorrowingsOptions{
		Limit:      &params.Limit,
		Offset:     &params.Offset,
		CopyID:     params.CopyID,
		BorrowerID: params.BorrowerID,
		Status:     params.Status,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Borrowings []*models.Borrowing `json:"borrowings"`
		Total      int                 `json:"total"`
	}{borrowings, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) returnCopy(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Borrowing")
	}

	// Bind params.
	params := ReturnBorrowingPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	var returnDate *time.Time
	if params.ReturnDate != nil && *params.ReturnDate != "" {
		parsed, err := time.Parse("2006-01-02", *params.ReturnDate)
		if err != nil {
			return errcodes.ValidationError("return_date must be formatted as YYYY-MM-DD.")
		}
		returnDate = &parsed
	}

	borrowing, err := h.borrowingService.Return(ctx, id, returnDate)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, borrowing))
}

func (h *handler) markLost(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Borrowing")
	}

	borrowing, err := h.borrowingService.MarkLost(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, borrowing))
}

func (h *handler) payFine(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Borrowing")
	}

	borrowing, err := h.borrowingService.MarkFinePaid(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, borrowing))
}
