package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"casa_booking/internal/adapters/observability"
	"casa_booking/internal/app"
	"casa_booking/internal/shared"
	mysqlrepo "casa_booking/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	log.Info().Dur("interval", interval).Msg("lock sweeper starting")

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, observability.MetricsHandler(reg))

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	locks := app.NewLockManager(mysqlrepo.New(db), cfg.LockTTL)

	// one pass up front so a restart does not wait a full interval
	if n, err := locks.CleanExpired(ctx); err != nil {
		log.Error().Err(err).Msg("initial sweep failed")
	} else {
		observability.ObserveSwept(n)
		log.Info().Int64("deleted", n).Msg("initial sweep done")
	}

	locks.RunSweeper(ctx, interval, observability.ObserveSwept)
	log.Info().Msg("lock sweeper completed")
}
