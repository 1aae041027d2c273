package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelstyle/internal/api"
	"github.com/dunamismax/pixelstyle/internal/config"
	"github.com/dunamismax/pixelstyle/internal/content"
	"github.com/dunamismax/pixelstyle/internal/lifecycle"
	"github.com/dunamismax/pixelstyle/internal/logging"
	"github.com/dunamismax/pixelstyle/internal/pipeline"
	"github.com/dunamismax/pixelstyle/internal/ratelimit"
	"github.com/dunamismax/pixelstyle/internal/render"
	"github.com/dunamismax/pixelstyle/internal/storage"
	"github.com/dunamismax/pixelstyle/internal/style"
	"github.com/dunamismax/pixelstyle/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.ServiceName, cfg.Tracing, logger)
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	registry := style.NewRegistry()
	if err := registry.LoadDir(cfg.Styles.Dir); err != nil {
		logger.Fatal("load styles failed", zap.String("dir", cfg.Styles.Dir), zap.Error(err))
	}
	logger.Info("styles loaded", zap.Int("count", registry.Len()), zap.Strings("names", registry.Names()))

	builder, err := pipeline.NewDefaultBuilder()
	if err != nil {
		logger.Fatal("image codec init failed", zap.Error(err))
	}
	defer pipeline.Shutdown()
	logger.Info("image codec ready", zap.String("codec", builder.Codec().Name()))

	service := render.New(logger.Named("render"), registry, builder)
	defer service.Shutdown()

	bus := evbus.New()
	binder, err := lifecycle.NewBinder(bus, service, logger.Named("lifecycle"))
	if err != nil {
		logger.Fatal("binder setup failed", zap.Error(err))
	}
	defer binder.Close()

	closers := connectCollaborators(ctx, cfg, bus, logger)
	defer closers.closeAll()

	go func() {
		if err := binder.Wait(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("dependencies did not bind", zap.Error(err))
			}
			return
		}
		logger.Info("render service ready")
	}()

	opts := []api.Option{api.WithTracer(otel.Tracer("pixelstyle/api"))}
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatal("rate limiter setup failed", zap.Error(err))
		}
		opts = append(opts, api.WithRateLimiter(limiter))
		logger.Info("rate limiting enabled", zap.Int("capacity", cfg.RateLimit.Capacity), zap.Duration("window", cfg.RateLimit.Window))
	}

	app := api.NewServer(logger.Named("api"), service, opts...)
	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.API.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// connectCollaborators dials Postgres and MinIO in the background and
// announces each one on the bus as soon as it is usable.
func connectCollaborators(ctx context.Context, cfg config.Config, bus evbus.Bus, logger *zap.Logger) *closerList {
	closers := newCloserList(logger)

	go func() {
		index, err := retry(ctx, logger, "postgres", func(ctx context.Context) (*content.PostgresIndex, error) {
			return content.NewPostgresIndex(ctx, cfg.Database.DSN)
		})
		if err != nil {
			return
		}
		if !closers.add(index.Close) {
			return
		}
		lifecycle.AnnounceContentIndex(bus, index)
	}()

	go func() {
		client, err := retry(ctx, logger, "minio", func(ctx context.Context) (*storage.Client, error) {
			client, err := storage.NewClient(storage.Config{
				Endpoint: cfg.Storage.Endpoint,
				Access:   cfg.Storage.AccessKey,
				Secret:   cfg.Storage.SecretKey,
				Bucket:   cfg.Storage.Bucket,
				Prefix:   cfg.Storage.Prefix,
				UseSSL:   cfg.Storage.UseSSL,
			})
			if err != nil {
				return nil, err
			}
			if err := client.EnsureBucket(ctx); err != nil {
				return nil, err
			}
			return client, nil
		})
		if err != nil {
			return
		}
		lifecycle.AnnounceByteStorage(bus, client)
	}()

	return closers
}

func retry[T any](ctx context.Context, logger *zap.Logger, name string, connect func(context.Context) (T, error)) (T, error) {
	delay := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		value, err := connect(attemptCtx)
		cancel()
		if err == nil {
			logger.Info("connected", zap.String("dependency", name), zap.Int("attempt", attempt))
			return value, nil
		}

		logger.Warn("connect failed", zap.String("dependency", name), zap.Int("attempt", attempt), zap.Duration("retry_in", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
}
