// Command worker consumes evaluation jobs and runs the pipeline. It also
// re-publishes stalled jobs and prunes finished ones.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/lock"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/queue/shared"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/app"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
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

	shutdownTracer, err := observability.SetupTracing(ctx, cfg, "worker")
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.WorkerPort), Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	repos := app.NewRepos(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	pipeline, err := app.BuildPipeline(cfg, repos)
	if err != nil {
		slog.Error("pipeline setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, redpanda.TopicEvaluate)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = producer.Close() }()

	handler := &shared.Handler{
		Jobs:         repos.Jobs,
		Applications: repos.Applications,
		Lock:         lock.NewRedisLock(rdb, cfg.EvalLockTTL),
		Pipeline:     pipeline,
		MaxAttempts:  cfg.JobMaxAttempts,
	}
	consumer, err := redpanda.NewConsumer(redpanda.ConsumerConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.ConsumerGroup,
		Topic:       redpanda.TopicEvaluate,
		Concurrency: cfg.ConsumerConcurrency,
	}, handler)
	if err != nil {
		slog.Error("redpanda consumer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	go app.NewStuckJobSweeper(repos.Jobs, producer, cfg.SweeperMaxAge, cfg.SweeperInterval, cfg.JobMaxAttempts).Run(ctx)
	if cfg.JobRetentionDays > 0 {
		go postgres.NewCleanupService(pool, cfg.JobRetentionDays).RunPeriodic(ctx, 24*time.Hour)
	}

	if err := consumer.Run(ctx); err != nil {
		slog.Error("consumer stopped", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}
