// Command server starts the evaluation HTTP API.
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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/ratelimit"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/app"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/usecase"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.SetupTracing(ctx, cfg, "server")
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	repos := app.NewRepos(pool)

	producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, redpanda.TopicEvaluate)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = producer.Close() }()

	var rdb *redis.Client
	if opts, err := redis.ParseURL(cfg.RedisURL); err != nil {
		slog.Warn("invalid REDIS_URL, trigger throttling disabled", slog.Any("error", err))
	} else {
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}
	var triggers ratelimit.Limiter
	var redisPing app.Pinger
	if rdb != nil {
		if l := ratelimit.NewRedisLuaLimiter(rdb, "analyze:", ratelimit.NewBucketConfigFromPerMinute(cfg.TriggerLimitPerMin)); l != nil {
			triggers = l
		}
		redisPing = app.RedisPinger(rdb)
	}

	srv := httpserver.NewServer(cfg,
		usecase.NewEvaluateService(repos.Applications, repos.Jobs, producer),
		usecase.NewResultService(repos.Jobs, repos.Evaluations),
		triggers,
		app.BuildReadinessChecks(cfg, pool, redisPing, producer)...,
	)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, srv),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
