package reservations

import (
	"net/http"
	"strconv"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/identity"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	reservationService *Service
	directory          identity.Directory
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()
	copyID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book copy")
	}

	// Bind params.
	params := CreateReservationPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	reservation, err := h.reservationService.Reserve(ctx, copyID, params.UserID, params.UserType, params.Notes)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, reservation))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Reservation")
	}

	params := RetrieveReservationQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	reservation, err := h.reservationService.RetrieveReservation(ctx, RetrieveReservationOptions{
		ID:          &id,
		IncludeCopy: params.IncludeCopy,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		*models.Reservation
		User *identity.User `json:"user,omitempty"`
	}{Reservation: reservation}

	// Directory enrichment is best effort; the read succeeds without it.
	if user, err := h.directory.GetUser(ctx, reservation.UserID); err == nil {
		resp.User = user
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListReservationsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	reservations, total, err := h.reservationService.ListReservationsWithTotal(ctx, ListReservationsOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
		CopyID: params.CopyID,
		UserID: params.UserID,
		Status: params.Status,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Reservations []*models.Reservation `json:"reservations"`
		Total        int                   `json:"total"`
	}{reservations, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) fulfill(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Reservation")
	}

	borrowing, err := h.reservationService.Fulfill(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, borrowing))
}

func (h *handler) cancel(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Reservation")
	}

	reservation, err := h.reservationService.Cancel(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, reservation))
}
