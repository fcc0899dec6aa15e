package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/queue/shared"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/app"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// services is what the commands operate on.
type services struct {
	Applications domain.ApplicationRepository
	Evaluations  domain.EvaluationRepository
	Jobs         domain.JobRepository
	// Pipeline and Queue are built only when a command asks for them.
	Pipeline func() (shared.Evaluator, error)
	Queue    func() (domain.Queue, error)
	Close    func()
}

type commandContext struct {
	envFile string
	open    func(ctx context.Context, envFile string) (*services, error)
}

func newCommandContext() *commandContext {
	return &commandContext{open: openServices}
}

func (c *commandContext) withServices(ctx context.Context, fn func(*services) error) error {
	svc, err := c.open(ctx, c.envFile)
	if err != nil {
		return err
	}
	if svc.Close != nil {
		defer svc.Close()
	}
	return fn(svc)
}

func openServices(ctx context.Context, envFile string) (*services, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	repos := app.NewRepos(pool)
	var closers []func()
	closers = append(closers, pool.Close)

	return &services{
		Applications: repos.Applications,
		Evaluations:  repos.Evaluations,
		Jobs:         repos.Jobs,
		Pipeline: func() (shared.Evaluator, error) {
			return app.BuildPipeline(cfg, repos)
		},
		Queue: func() (domain.Queue, error) {
			p, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, redpanda.TopicEvaluate)
			if err != nil {
				return nil, err
			}
			closers = append(closers, func() { _ = p.Close() })
			return p, nil
		},
		Close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}
