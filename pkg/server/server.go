package server

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/campuskeep/circulate/pkg/binder"
	"github.com/campuskeep/circulate/pkg/books"
	"github.com/campuskeep/circulate/pkg/borrowings"
	"github.com/campuskeep/circulate/pkg/config"
	"github.com/campuskeep/circulate/pkg/copies"
	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/identity"
	"github.com/campuskeep/circulate/pkg/jobs"
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/libraries"
	"github.com/campuskeep/circulate/pkg/notifications"
	"github.com/campuskeep/circulate/pkg/reservations"
	"github.com/campuskeep/circulate/pkg/testutils"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	golog "github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, ledgerService *ledger.Service) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	dispatcher := notifications.NewLogDispatcher(golog.New())
	directory := identity.FromConfig(cfg.IdentityServiceURL)

	libraries.RegisterRoutes(e, db)
	books.RegisterRoutes(e, db)
	copies.RegisterRoutes(e, db, ledgerService)
	borrowings.RegisterRoutes(e, db, ledgerService, dispatcher, directory)
	reservations.RegisterRoutes(e, db, ledgerService, dispatcher, directory)
	jobs.RegisterRoutes(e, db)

	if os.Getenv("ENVIRONMENT") == "test" {
		testutils.RegisterRoutes(e, db)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
