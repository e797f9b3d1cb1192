package copies

import (
	"net/http"
	"strconv"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	copyService *Service
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateCopyPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	bookCopy := &models.BookCopy{
		BookID:     params.BookID,
		CopyNumber: params.CopyNumber,
		Location:   params.Location,
	}
	if params.Condition != nil {
		bookCopy.Condition = *params.Condition
	}

	err := h.copyService.CreateCopy(ctx, bookCopy)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, bookCopy))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book copy")
	}

	params := RetrieveCopyQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	bookCopy, err := h.copyService.RetrieveCopy(ctx, RetrieveCopyOptions{
		ID:          &id,
		IncludeBook: params.IncludeBook,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		*models.BookCopy
		Alternatives []*models.BookCopy `json:"alternatives,omitempty"`
	}{BookCopy: bookCopy}

	// When the copy can't be taken out, point the caller at the sibling
	// copies that can.
	if bookCopy.Status != models.CopyStatusAvailable {
		alternatives, err := h.copyService.ListAvailableAlternatives(ctx, id)
		if err != nil {
			return errors.WithStack(err)
		}
		resp.Alternatives = alternatives
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListCopiesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	bookCopies, total, err := h.copyService.ListCopiesWithTotal(ctx, ListCopiesOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
		BookID: params.BookID,
		Status: params.Status,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Copies []*models.BookCopy `json:"copies"`
		Total  int                `json:"total"`
	}{bookCopies, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book copy")
	}

	// Bind params.
	params := UpdateCopyPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	bookCopy, err := h.copyService.RetrieveCopy(ctx, RetrieveCopyOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	opts := UpdateCopyOptions{Columns: []string{}}

	if params.Condition != nil && *params.Condition != bookCopy.Condition {
		bookCopy.Condition = *params.Condition
		opts.Columns = append(opts.Columns, "condition")
	}
	if params.Location != nil {
		bookCopy.Location = params.Location
		opts.Columns = append(opts.Columns, "location")
	}

	err = h.copyService.UpdateCopy(ctx, bookCopy, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, bookCopy))
}

func (h *handler) setStatus(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book copy")
	}

	// Bind params.
	params := SetCopyStatusPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	err = h.copyService.SetStatus(ctx, id, params.Status)
	if err != nil {
		return errors.WithStack(err)
	}

	bookCopy, err := h.copyService.RetrieveCopy(ctx, RetrieveCopyOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, bookCopy))
}
