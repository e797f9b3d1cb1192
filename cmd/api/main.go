package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/campuskeep/circulate/pkg/config"
	"github.com/campuskeep/circulate/pkg/database"
	"github.com/campuskeep/circulate/pkg/jobs"
	"github.com/campuskeep/circulate/pkg/ledger"
	"github.com/campuskeep/circulate/pkg/migrations"
	"github.com/campuskeep/circulate/pkg/notifications"
	"github.com/campuskeep/circulate/pkg/server"
	"github.com/campuskeep/circulate/pkg/version"
	"github.com/campuskeep/circulate/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting circulate", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	ledgerService := ledger.NewService(db)
	dispatcher := notifications.NewLogDispatcher(log)

	wrkr := worker.New(cfg, db, ledgerService, dispatcher)
	scheduler := worker.NewScheduler(cfg.SweepInterval, jobs.NewService(db))

	srv, err := server.New(cfg, db, ledgerService)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	scheduler.Start()
	log.Info("scheduler started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	scheduler.Shutdown()
	log.Info("scheduler shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
