package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/timely/internal/config"
	"example.com/timely/internal/logging"
	"example.com/timely/internal/outbox"
)

const defaultDLQBatchSize = 50

func main() {
	once := flag.Bool("once", false, "process a single DLQ batch and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With(slog.String("service", cfg.ServiceName+"-dlqmanager"))
	if err := run(cfg, logger, *once); err != nil {
		logger.Error("dlq manager stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, logger, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	if once {
		processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
		backlog, backlogErr := manager.Backlog(ctx)
		logger.Info("dlq batch complete", slog.Int("processed", processed), slog.Int("backlog", backlog))
		return errors.Join(err, backlogErr)
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 2 * time.Second}
	go func() {
		logger.Info("dlq manager metrics listening", slog.String("addr", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	logger.Info("dlq manager started",
		slog.Duration("interval", cfg.DLQPollInterval),
		slog.Int("max_retries", cfg.DLQMaxRetries),
	)
	manager.Run(ctx, cfg.DLQPollInterval, defaultDLQBatchSize)
	logger.Info("dlq manager received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", slog.Any("error", err))
	}
	return nil
}
