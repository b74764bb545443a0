package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "casa_booking/internal/adapters/http_server"
	"casa_booking/internal/adapters/kafka"
	"casa_booking/internal/adapters/observability"
	"casa_booking/internal/adapters/promo"
	redisad "casa_booking/internal/adapters/redis"
	"casa_booking/internal/app"
	"casa_booking/internal/domain"
	"casa_booking/internal/shared"
	"casa_booking/internal/storage/memory"
	mysqlrepo "casa_booking/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, observability.MetricsHandler(reg))

	// store
	var (
		store   domain.Store
		coupons domain.CouponValidator
	)
	switch cfg.Store {
	case "memory":
		st := memory.New()
		seedDemo(st)
		store, coupons = st, st
		log.Warn().Msg("using in-memory store; data is lost on exit")
	default:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		repo := mysqlrepo.New(db)
		store, coupons = repo, repo
	}

	// collaborators
	var cache domain.Cache
	rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := rc.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable; running without cache and idempotency replay")
	} else {
		defer rc.Close()
		cache = rc
	}

	if cfg.PromoBase != "" {
		pc, err := promo.New(cfg.PromoBase, cfg.PromoKey, cfg.PromoRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize promo client")
		}
		coupons = pc
		log.Info().Str("base", cfg.PromoBase).Msg("coupons served by promo service")
	}

	var events domain.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, nil)
		if err != nil {
			log.Fatal().Err(err).Strs("brokers", cfg.KafkaBrokers).Msg("kafka producer failed")
		}
		defer pub.Close()
		events = pub
		log.Info().Str("topic", pub.Topic()).Msg("publishing booking events")
	}

	// services
	locks := app.NewLockManager(store, cfg.LockTTL)
	bookings := app.NewBookingService(app.BookingDeps{
		Store:                store,
		Coupons:              coupons,
		Cache:                cache,
		Events:               events,
		RefPrefix:            cfg.RefPrefix,
		IdempotencyTTL:       cfg.IdempotencyTTL,
		CouponTimeout:        cfg.CouponTimeout,
		MaxConcurrentCommits: cfg.CommitLimit,
	})
	if cfg.SweepInterval > 0 {
		go locks.RunSweeper(ctx, cfg.SweepInterval, observability.ObserveSwept)
	}

	// http
	srv := server.New(server.WithRequestTimeout(cfg.RequestTimeout))
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Search:      app.NewSearchService(store),
		Locks:       locks,
		Bookings:    bookings,
		Queries:     app.NewQueryService(store, cache, cfg.CacheTTL),
		LockLimiter: server.NewClientLimiter(cfg.LockRateRPS, cfg.LockRateBurst),
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
