package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flatbridge/flatbridge/internal/api"
	"github.com/flatbridge/flatbridge/internal/bridge"
	"github.com/flatbridge/flatbridge/internal/config"
	"github.com/flatbridge/flatbridge/internal/ingest"
	"github.com/flatbridge/flatbridge/internal/job"
	"github.com/flatbridge/flatbridge/internal/observability"
	"github.com/flatbridge/flatbridge/internal/preview"
	"github.com/flatbridge/flatbridge/internal/storage"
	localstore "github.com/flatbridge/flatbridge/internal/storage/local"
	s3store "github.com/flatbridge/flatbridge/internal/storage/s3"
	"github.com/flatbridge/flatbridge/internal/store/sqlstore"
)

func main() {
	cfg, err := config.LoadFromEnv("flatbridge-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	connector := sqlstore.NewConnector(sqlstore.PoolConfig{
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	defer func() { _ = connector.Close() }()

	staging, err := openStaging(context.Background(), cfg.Staging)
	if err != nil {
		logger.Error("failed to initialize staging store", slog.Any("error", err))
		os.Exit(1)
	}

	pool := job.NewPool(cfg.Jobs.Workers, cfg.Jobs.QueueSize, logger)
	engine := &ingest.Engine{
		Connector: connector,
		Jobs:      job.NewStore(),
		Pool:      pool,
		Staging:   staging,
		Config:    ingest.Config{BatchSize: cfg.Jobs.BatchSize},
		Logger:    logger,
	}
	service := &bridge.Service{
		Connector: connector,
		Engine:    engine,
		Preview:   &preview.Service{Connector: connector, DefaultLimit: cfg.Preview.DefaultLimit},
		Defaults:  bridge.DefaultsFromConfig(cfg.Store),
		Logger:    logger,
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Bridge:            service,
		Readiness:         api.CheckStore(service),
		DependencyTimeout: 2 * time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("store_driver", cfg.Store.Driver),
			slog.String("staging_backend", cfg.Staging.Backend),
			slog.Int("workers", cfg.Jobs.Workers),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	exitCode := 0
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		exitCode = 1
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error("job pool did not drain", slog.Any("error", err))
		exitCode = 1
	}
	if exitCode != 0 {
		_ = connector.Close()
		os.Exit(exitCode)
	}
}

func openStaging(ctx context.Context, cfg config.StagingConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "", "local":
		return localstore.New(cfg.Dir, cfg.Prefix)
	case "s3":
		return s3store.New(ctx, s3store.ConfigFromStaging(cfg))
	default:
		return nil, fmt.Errorf("unsupported staging backend %q", cfg.Backend)
	}
}
