package libraries

import (
	"net/http"
	"strconv"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	libraryService *Service
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateLibraryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	library := &models.Library{
		Name:                params.Name,
		MaxBorrowLimit:      params.MaxBorrowLimit,
		BorrowDurationDays:  params.BorrowDurationDays,
		ReservationHoldDays: params.ReservationHoldDays,
	}
	if params.Status != nil {
		library.Status = *params.Status
	}
	if params.FinePerDay != nil {
		library.FinePerDay = *params.FinePerDay
	}

	err := h.libraryService.CreateLibrary(ctx, library)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Library")
	}

	library, err := h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListLibrariesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	libraries, total, err := h.libraryService.ListLibrariesWithTotal(ctx, ListLibrariesOptions{
		Limit:          &params.Limit,
		Offset:         &params.Offset,
		Status:         params.Status,
		IncludeDeleted: params.Deleted,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Libraries []*models.Library `json:"libraries"`
		Total     int               `json:"total"`
	}{libraries, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Library")
	}

	// Bind params.
	params := UpdateLibraryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	// Fetch the library.
	library, err := h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	// Keep track of what's been changed.
	opts := UpdateLibraryOptions{Columns: []string{}}

	if params.Name != nil && *params.Name != library.Name {
		library.Name = *params.Name
		opts.Columns = append(opts.Columns, "name")
	}
	if params.Status != nil && *params.Status != library.Status {
		library.Status = *params.Status
		opts.Columns = append(opts.Columns, "status")
	}
	if params.MaxBorrowLimit != nil && *params.MaxBorrowLimit != library.MaxBorrowLimit {
		library.MaxBorrowLimit = *params.MaxBorrowLimit
		opts.Columns = append(opts.Columns, "max_borrow_limit")
	}
	if params.BorrowDurationDays != nil && *params.BorrowDurationDays != library.BorrowDurationDays {
		library.BorrowDurationDays = *params.BorrowDurationDays
		opts.Columns = append(opts.Columns, "borrow_duration_days")
	}
	if params.FinePerDay != nil && *params.FinePerDay != library.FinePerDay {
		library.FinePerDay = *params.FinePerDay
		opts.Columns = append(opts.Columns, "fine_per_day")
	}
	if params.ReservationHoldDays != nil && *params.ReservationHoldDays != library.ReservationHoldDays {
		library.ReservationHoldDays = *params.ReservationHoldDays
		opts.Columns = append(opts.Columns, "reservation_hold_days")
	}

	// Update the model.
	err = h.libraryService.UpdateLibrary(ctx, library, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Library")
	}

	err = h.libraryService.DeleteLibrary(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}
