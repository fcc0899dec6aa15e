package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/ratelimit"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/usecase"
)

// Check tests one dependency for readiness.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg      config.Config
	Evaluate usecase.EvaluateService
	Results  usecase.ResultService
	// Triggers throttles repeated analyze calls per application; nil disables it.
	Triggers ratelimit.Limiter
	Checks   []Check
}

// NewServer constructs a Server.
func NewServer(cfg config.Config, eval usecase.EvaluateService, results usecase.ResultService, triggers ratelimit.Limiter, checks ...Check) *Server {
	return &Server{Cfg: cfg, Evaluate: eval, Results: results, Triggers: triggers, Checks: checks}
}

// AnalyzeHandler queues an evaluation and answers before it runs.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "applicationId")
		if err := ValidateID("applicationId", id); err != nil {
			writeError(w, r, err, validationDetails(err))
			return
		}
		ctx := r.Context()
		if s.Triggers != nil {
			allowed, retryAfter, err := s.Triggers.Allow(ctx, id)
			if err != nil {
				LoggerFrom(r).Warn("trigger limiter unavailable", slog.String("error", err.Error()))
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				writeError(w, r, fmt.Errorf("%w: evaluation recently triggered for this application", domain.ErrRateLimited), nil)
				return
			}
		}
		jobID, err := s.Evaluate.Trigger(ctx, id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"processing":     true,
			"job_id":         jobID,
			"application_id": id,
		})
	}
}

// EvaluationHandler returns the stored evaluation of an application.
func (s *Server) EvaluationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "applicationId")
		if err := ValidateID("applicationId", id); err != nil {
			writeError(w, r, err, validationDetails(err))
			return
		}
		fe, err := s.Results.Evaluation(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, BuildEvaluationEnvelope(fe))
	}
}

// JobHandler returns the status of one evaluation job.
func (s *Server) JobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobId")
		if err := ValidateID("jobId", id); err != nil {
			writeError(w, r, err, validationDetails(err))
			return
		}
		job, err := s.Results.Job(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, BuildJobEnvelope(job))
	}
}

// ReadyzHandler runs every check and answers 503 when any fails.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(s.Checks))
		ok := true
		for _, c := range s.Checks {
			if c.Probe == nil {
				continue
			}
			if err := c.Probe(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: c.Name, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: c.Name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// BuildEvaluationEnvelope renders a FinalEvaluation for API clients.
func BuildEvaluationEnvelope(fe domain.FinalEvaluation) map[string]any {
	return map[string]any{
		"application_id": fe.ApplicationID,
		"score":          fe.Score,
		"ranking_score":  fe.RankingScore,
		"strengths":      nonNil(fe.Strengths),
		"weaknesses":     nonNil(fe.Weaknesses),
		"recommendation": fe.Recommendation,
		"analysis":       fe.Analysis,
		"created_at":     fe.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":     fe.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// BuildJobEnvelope renders an EvaluationJob for API clients.
func BuildJobEnvelope(j domain.EvaluationJob) map[string]any {
	out := map[string]any{
		"id":             j.ID,
		"application_id": j.ApplicationID,
		"status":         j.Status,
		"attempts":       j.Attempts,
		"created_at":     j.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":     j.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if j.Error != "" {
		out["error"] = j.Error
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
