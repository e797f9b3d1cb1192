package reservations

import (
	"github.com/campuskeep/circulate/pkg/identity"
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/notifications"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB, ledgerService *ledger.Service, dispatcher notifications.Dispatcher, directory identity.Directory) {
	h := &handler{
		reservationService: NewService(db, ledgerService, dispatcher),
		directory:          directory,
	}

	e.POST("/copies/:id/reservations", h.create)
	e.GET("/reservations/:id", h.retrieve)
	e.GET("/reservations", h.list)
	e.POST("/reservations/:id/fulfill", h.fulfill)
	e.POST("/reservations/:id/cancel", h.cancel)
}
