// Package usecase contains the evaluation pipeline and its application services.
package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
)

// JobTypeEvaluate labels evaluation jobs in metrics.
const JobTypeEvaluate = "evaluate"

// EvaluateService records evaluation jobs and hands them to the queue.
type EvaluateService struct {
	Applications domain.ApplicationRepository
	Jobs         domain.JobRepository
	Queue        domain.Queue
}

// NewEvaluateService constructs an EvaluateService with its dependencies.
func NewEvaluateService(a domain.ApplicationRepository, j domain.JobRepository, q domain.Queue) EvaluateService {
	return EvaluateService{Applications: a, Jobs: j, Queue: q}
}

// Trigger checks the application exists, creates a queued job and publishes it.
// It returns the job id; the evaluation itself runs in the worker.
func (s EvaluateService) Trigger(ctx domain.Context, applicationID string) (string, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return "", fmt.Errorf("%w: application id required", domain.ErrInvalidArgument)
	}
	ok, err := s.Applications.Exists(ctx, applicationID)
	if err != nil {
		return "", fmt.Errorf("op=evaluate.trigger: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: application %s", domain.ErrNotFound, applicationID)
	}

	now := time.Now().UTC()
	reqID := obsctx.RequestIDFromContext(ctx)
	jobID, err := s.Jobs.Create(ctx, domain.EvaluationJob{
		ApplicationID: applicationID,
		Status:        domain.JobQueued,
		RequestID:     reqID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return "", fmt.Errorf("op=evaluate.trigger: %w", err)
	}

	payload := domain.EvaluateTaskPayload{JobID: jobID, ApplicationID: applicationID, RequestID: reqID}
	if _, err := s.Queue.EnqueueEvaluate(ctx, payload); err != nil {
		msg := "enqueue failed"
		_ = s.Jobs.UpdateStatus(ctx, jobID, domain.JobFailed, &msg)
		return "", fmt.Errorf("op=evaluate.trigger: %w", err)
	}
	observability.EnqueueJob(JobTypeEvaluate)
	obsctx.LoggerFromContext(ctx).Info("evaluation queued",
		slog.String("job_id", jobID), slog.String("application_id", applicationID))
	return jobID, nil
}
