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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/timely/internal/api"
	"example.com/timely/internal/auth"
	"example.com/timely/internal/cache"
	"example.com/timely/internal/config"
	"example.com/timely/internal/domain"
	"example.com/timely/internal/logging"
	"example.com/timely/internal/observability"
	"example.com/timely/internal/outbox"
	"example.com/timely/internal/persistence/memory"
	"example.com/timely/internal/persistence/postgres"
	httptransport "example.com/timely/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat).With(slog.String("service", cfg.ServiceName))
	if err := run(cfg, logger); err != nil {
		logger.Error("timesheet api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:        cfg.TracingEnabled,
		Endpoint:       cfg.TracingEndpoint,
		Insecure:       cfg.TracingInsecure,
		SampleRate:     cfg.TracingSampleRate,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(flushCtx)
	}()

	policy, err := domain.ParseVerificationPolicy(cfg.VerificationPolicy)
	if err != nil {
		return err
	}
	opts := []domain.Option{
		domain.WithLogger(logger),
		domain.WithVerificationPolicy(policy),
	}

	var owners domain.OwnerCache = cache.Noop{}
	if cfg.RedisURL != "" {
		redisOwners, err := cache.Dial(ctx, cfg.RedisURL, cfg.OwnerCacheTTL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisOwners.Close()
		owners = redisOwners
		logger.Info("project owner cache enabled", slog.Duration("ttl", cfg.OwnerCacheTTL))
	}
	opts = append(opts, domain.WithOwnerCache(owners))

	var (
		store      domain.Store
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data and events are not persisted")
		store = memory.NewStore()
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		if cfg.MigrateOnStart {
			applied, err := postgres.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", slog.Any("versions", applied))
		}
		store = postgres.NewStore(pool)

		if cfg.OutboxEnabled {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()

			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, registry, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
			go dispatcher.Start(ctx)
		}
	}

	handler := api.NewHandler(
		domain.NewProjectService(store, opts...),
		domain.NewActivityService(store, opts...),
		logger,
	)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Chain(httptransport.ChainConfig{
		ServiceName:   cfg.ServiceName,
		AllowedOrigin: cfg.CORSAllowedOrigin,
		Auth:          auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}),
		Logger:        logger,
	}, mux))
	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 2 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("timesheet api listening", slog.String("addr", cfg.HTTPAddress), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-errCh:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", slog.Any("error", err))
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
	return runErr
}
