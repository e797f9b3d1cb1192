package copies

import (
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB, ledgerService *ledger.Service) {
	h := &handler{
		copyService: NewService(db, ledgerService),
	}

	e.POST("/copies", h.create)
	e.GET("/copies/:id", h.retrieve)
	e.GET("/copies", h.list)
	e.POST("/copies/:id", h.update)
	e.POST("/copies/:id/status", h.setStatus)
}
