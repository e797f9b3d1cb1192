package borrowings

import (
	"github.com/campuskeep/circulate/pkg/identity"
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/notifications"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB, ledgerService *ledger.Service, dispatcher notifications.Dispatcher, directory identity.Directory) {
	h := &handler{
		borrowingService: NewService(db, ledgerService, dispatcher),
		directory:        directory,
	}

	e.POST("/copies/:id/borrow", h.create)
	e.GET("/borrowings/:id", h.retrieve)
	e.GET("/borrowings", h.list)
	e.POST("/borrowings/:id/return", h.returnCopy)
	e.POST("/borrowings/:id/lost", h.markLost)
	e.POST("/borrowings/:id/fine/pay", h.payFine)
}
