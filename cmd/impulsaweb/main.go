// Package main запускает HTTP-сервер приёма заказов и брифов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/impulsaweb/internal/config"
	"github.com/mmeshcher/impulsaweb/internal/handler"
	"github.com/mmeshcher/impulsaweb/internal/lock"
	"github.com/mmeshcher/impulsaweb/internal/metrics"
	"github.com/mmeshcher/impulsaweb/internal/middleware"
	"github.com/mmeshcher/impulsaweb/internal/notify"
	"github.com/mmeshcher/impulsaweb/internal/orderid"
	"github.com/mmeshcher/impulsaweb/internal/repository"
	"github.com/mmeshcher/impulsaweb/internal/rowstore"
	"github.com/mmeshcher/impulsaweb/internal/service"
	"github.com/mmeshcher/impulsaweb/internal/sheets"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	backend, closeBackend, err := newBackend(cfg)
	if err != nil {
		sugar.Fatalw("storage initialization error", "backend", cfg.StorageBackend, "error", err.Error())
	}
	defer closeBackend()

	var storeOpts []rowstore.Option
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer client.Close()

		storeOpts = append(storeOpts, rowstore.WithLocker(lock.NewRedis(client)))
		sugar.Infow("using redis row locks")
	}
	store := rowstore.New(backend, storeOpts...)

	m := metrics.New()

	svcOpts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithTables(cfg.OrdersSheet, cfg.BriefsSheet),
		service.WithIDGenerator(orderid.NewGenerator(cfg.OrderIDPrefix)),
	}
	if cfg.NotifyWebhookURL != "" {
		svcOpts = append(svcOpts, service.WithNotifier(notify.NewClient(cfg.NotifyWebhookURL)))
	}
	svc := service.NewService(store, svcOpts...)

	if cfg.SchemaAutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := svc.EnsureSchema(ctx)
		cancel()
		if err != nil {
			sugar.Fatalw("schema initialization error", "error", err.Error())
		}
	}

	admin := middleware.NewAdminAuth(cfg.AdminToken)
	if !admin.Enabled() {
		sugar.Warn("ADMIN_TOKEN is not set, admin endpoints are disabled")
	}

	h := handler.NewHandler(svc, logger, admin, m)
	if p, ok := backend.(handler.Pinger); ok {
		h.WithPinger(p)
	}

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting impulsaweb server", "addr", cfg.RunAddress, "backend", cfg.StorageBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func newBackend(cfg *config.Config) (rowstore.Backend, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	case config.BackendMemory:
		return rowstore.NewMemory(), func() {}, nil
	default:
		client, err := sheets.New(context.Background(), sheets.Config{
			SpreadsheetID:       cfg.SpreadsheetID,
			ServiceAccountEmail: cfg.ServiceAccountEmail,
			PrivateKey:          cfg.PrivateKey,
			Range:               cfg.SheetsRange,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
