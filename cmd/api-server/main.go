package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/calendar-scheduling/internal/api"
	"github.com/hackgods/calendar-scheduling/internal/appointment"
	"github.com/hackgods/calendar-scheduling/internal/auth"
	"github.com/hackgods/calendar-scheduling/internal/config"
	"github.com/hackgods/calendar-scheduling/internal/db"
	"github.com/hackgods/calendar-scheduling/internal/logging"
	redisclient "github.com/hackgods/calendar-scheduling/internal/redis"
)

var version = "dev"

func main() {
	boot := logging.Bootstrap("api-server")
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "api-server")
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("timezone", cfg.Timezone).
		Str("lock_backend", cfg.LockBackend).
		Dur("lock_ttl", cfg.LockTTL).
		Dur("lock_wait", cfg.LockWait).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PGMaxConns,
		Timezone: cfg.Timezone,
	})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	if cfg.AutoMigrate {
		if err := db.Migrate(rootCtx, pgPool); err != nil {
			logger.Fatal().Err(err).Msg("schema migration error")
		}
		logger.Info().Msg("schema applied")
	}

	var (
		locker      redisclient.Locker
		redisPinger api.Pinger
	)
	if cfg.LockBackend == config.LockBackendLocal {
		locker = redisclient.NewLocalLocker()
		logger.Warn().Msg("using process-local slot locks, run a single instance")
	} else {
		// Connect Redis
		rdb, err := redisclient.NewClient(rootCtx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
		redisPinger = api.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	loc := cfg.Location()
	svc := appointment.NewService(
		appointment.NewPgCalendarRepository(pgPool),
		appointment.NewPgRepository(pgPool, loc),
		appointment.NewPgBlockedDateRepository(pgPool),
		locker,
		cfg,
		logger,
	)

	router := api.NewRouter(api.RouterConfig{
		Scheduler: svc,
		Authz:     auth.NewAdminList(cfg.AdminUserIDs),
		Postgres:  pgPool,
		Redis:     redisPinger,
		Logger:    logger,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server error")
		stop()
	}

	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
}
