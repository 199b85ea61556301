package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/chathuwa-whiz/schoolbus/internal/config"
	"github.com/chathuwa-whiz/schoolbus/internal/http-server/router"
	"github.com/chathuwa-whiz/schoolbus/internal/live"
	"github.com/chathuwa-whiz/schoolbus/internal/lock"
	"github.com/chathuwa-whiz/schoolbus/internal/notify"
	"github.com/chathuwa-whiz/schoolbus/internal/service"
	"github.com/chathuwa-whiz/schoolbus/internal/storage/redisdb"
	"github.com/chathuwa-whiz/schoolbus/internal/storage/sqldb"
	"github.com/chathuwa-whiz/schoolbus/internal/watchdog"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/handlers/slogpretty"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/sl"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const notifyTimeout = 5 * time.Second

// hub publishes session snapshots and serves them to live streams.
type hub interface {
	Publish(ctx context.Context, busID string, payload []byte) error
	Subscribe(ctx context.Context, busID string) (<-chan []byte, func())
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting schoolbus", slog.String("env", cfg.Env), slog.String("timezone", cfg.Timezone))
	log.Debug("Debug messages are enabled")

	loc, err := cfg.Location()
	if err != nil {
		log.Error("Invalid timezone", sl.Err(err))
		os.Exit(1)
	}

	storage, err := sqldb.New(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	var (
		redisClient *redis.Client
		locker      lock.Locker
		sender      notify.Sender
		liveHub     hub
	)

	if cfg.Redis.Addr != "" {
		redisClient, err = redisdb.New(cfg.Redis)
		if err != nil {
			log.Error("Failed to init redis", sl.Err(err))
			os.Exit(1)
		}

		locker = lock.NewRedisLock(redisClient)
		sender = notify.NewRedisStream(redisClient, notify.DefaultStream)
		liveHub = live.NewRedisHub(redisClient)
	} else {
		log.Warn("Redis is not configured, using in-process locks and live hub")

		locker = lock.NewLocal()
		sender = notify.NewLogSender(log)
		liveHub = live.NewLocalHub()
	}

	notifier := notify.NewAsync(log, sender, notifyTimeout)

	svc := service.NewService(log, storage, locker, notifier, liveHub, service.Config{
		Location:           loc,
		RejectStaleUpdates: cfg.Tracking.RejectStaleUpdates,
		IdleTimeout:        cfg.Tracking.IdleTimeout,
		LockTTL:            cfg.Tracking.LockTTL,
		LockWait:           cfg.Tracking.LockWait,
	})

	var sweeper *cron.Cron
	if cfg.Tracking.IdleTimeout > 0 {
		c, err := watchdog.Start(log, svc, cfg.Tracking.SweepSchedule, time.Minute)
		if err != nil {
			log.Error("Failed to start idle session watchdog", sl.Err(err))
			os.Exit(1)
		}
		sweeper = c
	}

	serv := &http.Server{
		Addr: cfg.HTTPServer.Address,
		Handler: router.New(log, router.Deps{
			Service:   svc,
			Hub:       liveHub,
			Health:    storage,
			JWTSecret: []byte(cfg.Auth.JWTSecret),
		}),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.HTTPServer.Address))
		if err := serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	if sweeper != nil {
		<-sweeper.Stop().Done()
		log.Info("Idle session watchdog stopped")
	}

	if err := notifier.Wait(ctx); err != nil {
		log.Warn("Pending notifications were dropped", sl.Err(err))
	}

	if err := storage.Close(); err != nil {
		log.Error("Failed to close storage", sl.Err(err))
	} else {
		log.Info("Storage closed")
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close redis", sl.Err(err))
		} else {
			log.Info("Redis closed")
		}
	}

	log.Info("Shutdown finished, server stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
