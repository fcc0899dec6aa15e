// Package shared holds the queue-agnostic evaluation job handler.
package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/usecase"
)

// Evaluator runs the evaluation pipeline for one application.
type Evaluator interface {
	Run(ctx domain.Context, app domain.Application) (domain.FinalEvaluation, error)
}

// Handler moves a job through processing to completed or failed around one
// pipeline run.
type Handler struct {
	Jobs         domain.JobRepository
	Applications domain.ApplicationRepository
	Lock         domain.EvaluationLock
	Pipeline     Evaluator
	// MaxAttempts bounds redeliveries of the same job; 0 means unbounded.
	MaxAttempts int
}

// Handle processes one queued job. Redelivery of a finished job is a no-op.
func (h *Handler) Handle(ctx context.Context, payload domain.EvaluateTaskPayload) error {
	ctx, span := otel.Tracer("queue.handler").Start(ctx, "Handler.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", payload.JobID))
	lg := obsctx.LoggerFromContext(ctx)

	job, err := h.Jobs.MarkProcessing(ctx, payload.JobID)
	switch {
	case errors.Is(err, domain.ErrConflict):
		lg.Info("job already finished, skipping redelivery")
		return nil
	case errors.Is(err, domain.ErrNotFound):
		lg.Warn("job record missing, dropping message")
		return nil
	case err != nil:
		span.RecordError(err)
		return fmt.Errorf("op=handler.markProcessing: %w", err)
	}
	observability.StartProcessingJob(usecase.JobTypeEvaluate)

	appID := job.ApplicationID
	if appID == "" {
		appID = payload.ApplicationID
	}
	span.SetAttributes(attribute.String("application_id", appID), attribute.Int("attempts", job.Attempts))

	if h.MaxAttempts > 0 && job.Attempts > h.MaxAttempts {
		return h.fail(ctx, job.ID, fmt.Errorf("max attempts exceeded (%d)", h.MaxAttempts), false)
	}

	release, acquired, err := h.Lock.Acquire(ctx, appID)
	if err != nil {
		return h.fail(ctx, job.ID, fmt.Errorf("acquire lock: %w", err), true)
	}
	if !acquired {
		return h.fail(ctx, job.ID, errors.New("evaluation already running for application"), false)
	}
	defer release(context.WithoutCancel(ctx))

	app, err := h.Applications.Get(ctx, appID)
	if err != nil {
		return h.fail(ctx, job.ID, fmt.Errorf("load application: %w", err), true)
	}
	fe, err := usecase.SafeRun(ctx, app, h.Pipeline.Run)
	if err != nil {
		return h.fail(ctx, job.ID, err, true)
	}

	if err := h.Jobs.UpdateStatus(ctx, job.ID, domain.JobCompleted, nil); err != nil {
		lg.Error("mark job completed failed", slog.String("error", err.Error()))
	}
	observability.CompleteJob(usecase.JobTypeEvaluate)
	lg.Info("job completed", slog.Int("score", fe.Score), slog.String("recommendation", string(fe.Recommendation)))
	return nil
}

// fail marks the job failed. When propagate is false the cause is recorded but
// the message is treated as handled.
func (h *Handler) fail(ctx context.Context, jobID string, cause error, propagate bool) error {
	span := trace.SpanFromContext(ctx)
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	msg := cause.Error()
	if err := h.Jobs.UpdateStatus(context.WithoutCancel(ctx), jobID, domain.JobFailed, &msg); err != nil {
		obsctx.LoggerFromContext(ctx).Error("mark job failed failed", slog.String("error", err.Error()))
	}
	observability.FailJob(usecase.JobTypeEvaluate)
	obsctx.LoggerFromContext(ctx).Warn("job failed", slog.String("error", msg))
	if propagate {
		return fmt.Errorf("op=handler.handle: %w", cause)
	}
	return nil
}
