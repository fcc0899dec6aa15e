package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// StuckJobSweeper re-publishes jobs that stopped making progress, so an
// evaluation interrupted by a crash or lost message still completes. Jobs out of
// attempts are marked failed.
type StuckJobSweeper struct {
	jobs        domain.JobRepository
	queue       domain.Queue
	maxAge      time.Duration
	interval    time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewStuckJobSweeper returns nil when jobs or queue is nil.
func NewStuckJobSweeper(jobs domain.JobRepository, queue domain.Queue, maxAge, interval time.Duration, maxAttempts int) *StuckJobSweeper {
	if jobs == nil || queue == nil {
		return nil
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &StuckJobSweeper{jobs: jobs, queue: queue, maxAge: maxAge, interval: interval, maxAttempts: maxAttempts, now: time.Now}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce handles one page of stale jobs and returns how many were
// re-published and how many were failed.
func (s *StuckJobSweeper) SweepOnce(ctx context.Context) (requeued, failed int) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.SweepOnce")
	defer span.End()

	const pageSize = 100
	cutoff := s.now().Add(-s.maxAge)
	jobs, err := s.jobs.ListStale(ctx, cutoff, pageSize)
	if err != nil {
		span.RecordError(err)
		slog.Error("stuck job sweep failed to list jobs", slog.String("error", err.Error()))
		return 0, 0
	}

	for _, j := range jobs {
		jobCtx, jobSpan := tracer.Start(ctx, "StuckJobSweeper.handleJob")
		jobSpan.SetAttributes(
			attribute.String("job.id", j.ID),
			attribute.String("job.status", string(j.Status)),
			attribute.Int("job.attempts", j.Attempts),
		)
		lg := slog.With(slog.String("job_id", j.ID), slog.String("application_id", j.ApplicationID))

		if j.Attempts >= s.maxAttempts {
			msg := fmt.Sprintf("gave up after %d attempts; no progress for %v", j.Attempts, s.maxAge)
			if err := s.jobs.UpdateStatus(jobCtx, j.ID, domain.JobFailed, &msg); err != nil {
				jobSpan.RecordError(err)
				lg.Error("sweeper failed to mark job failed", slog.String("error", err.Error()))
			} else {
				failed++
			}
			jobSpan.End()
			continue
		}

		// Touch updated_at first so the next sweep does not pick the job up again.
		if err := s.jobs.UpdateStatus(jobCtx, j.ID, domain.JobQueued, nil); err != nil {
			jobSpan.RecordError(err)
			lg.Error("sweeper failed to requeue job", slog.String("error", err.Error()))
			jobSpan.End()
			continue
		}
		payload := domain.EvaluateTaskPayload{JobID: j.ID, ApplicationID: j.ApplicationID, RequestID: j.RequestID}
		if _, err := s.queue.EnqueueEvaluate(jobCtx, payload); err != nil {
			jobSpan.RecordError(err)
			lg.Error("sweeper failed to publish job", slog.String("error", err.Error()))
			jobSpan.End()
			continue
		}
		requeued++
		lg.Info("stale job re-published", slog.Int("attempts", j.Attempts))
		jobSpan.End()
	}

	span.SetAttributes(
		attribute.Int("jobs.checked", len(jobs)),
		attribute.Int("jobs.requeued", requeued),
		attribute.Int("jobs.failed", failed),
	)
	return requeued, failed
}
