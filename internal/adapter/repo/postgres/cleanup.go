package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CleanupService prunes finished evaluation jobs past the retention period.
// Evaluations themselves are never pruned.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays}
}

// CleanupOldJobs deletes completed and failed jobs last updated before the cutoff.
func (s *CleanupService) CleanupOldJobs(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM evaluation_jobs WHERE status IN ('completed','failed') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=cleanup.jobs: %w", err)
	}
	slog.Info("job cleanup completed", slog.Int64("deleted_jobs", tag.RowsAffected()), slog.Time("cutoff", cutoff))
	return tag.RowsAffected(), nil
}

// RunPeriodic runs CleanupOldJobs now and then every interval until ctx is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.CleanupOldJobs(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if _, err := s.CleanupOldJobs(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
