package app

import (
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/ai/gateway"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/storage"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/textextractor/local"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/transcription"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/usecase"
)

// Repos groups the Postgres repositories over one pool.
type Repos struct {
	Applications *postgres.ApplicationRepo
	Resumes      *postgres.ResumeRepo
	Evaluations  *postgres.EvaluationRepo
	Jobs         *postgres.JobRepo
}

// NewRepos builds every repository over pool.
func NewRepos(pool postgres.PgxPool) Repos {
	return Repos{
		Applications: postgres.NewApplicationRepo(pool),
		Resumes:      postgres.NewResumeRepo(pool),
		Evaluations:  postgres.NewEvaluationRepo(pool),
		Jobs:         postgres.NewJobRepo(pool),
	}
}

// NewExtractor selects Tika when TIKA_URL is set and the in-process extractor otherwise.
func NewExtractor(cfg config.Config) domain.TextExtractor {
	if cfg.TikaURL != "" {
		return tika.New(cfg.TikaURL)
	}
	return local.New()
}

// BuildPipeline wires the evaluation pipeline from configuration.
func BuildPipeline(cfg config.Config, repos Repos) (*usecase.Pipeline, error) {
	scoring, err := config.LoadScoring(cfg.ScoringConfigPath)
	if err != nil {
		return nil, fmt.Errorf("op=app.BuildPipeline: %w", err)
	}
	gw := gateway.New(cfg.Gateway(), gateway.WithTokenCounter(tokencount.DefaultCounter))
	deps := usecase.PipelineDeps{
		Applications: repos.Applications,
		Resumes:      repos.Resumes,
		Evaluations:  repos.Evaluations,
		Media:        storage.New(cfg.Storage()),
		Gateway:      gw,
		Transcriber:  transcription.New(cfg.Transcription()),
		Extractor:    NewExtractor(cfg),
	}
	slog.Info("evaluation pipeline ready",
		slog.String("model", cfg.ModelName),
		slog.String("transcription_on_unavailable", cfg.Transcription().OnUnavailable),
		slog.Bool("tika", cfg.TikaURL != ""))
	return usecase.NewPipeline(deps, scoring), nil
}
