package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// JobRepo persists evaluation jobs in the evaluation_jobs table.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

const jobColumns = `id, application_id, status, attempts, error, request_id, created_at, updated_at`

func scanJob(row pgx.Row) (domain.EvaluationJob, error) {
	var j domain.EvaluationJob
	var status string
	if err := row.Scan(&j.ID, &j.ApplicationID, &status, &j.Attempts, &j.Error, &j.RequestID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return domain.EvaluationJob{}, err
	}
	j.Status = domain.JobStatus(status)
	return j, nil
}

// Create inserts a new job and returns its id, generating one when empty.
func (r *JobRepo) Create(ctx domain.Context, j domain.EvaluationJob) (string, error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.Create")
	defer span.End()
	dbAttrs(span, "INSERT", "evaluation_jobs")

	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := j.Status
	if status == "" {
		status = domain.JobQueued
	}
	now := time.Now().UTC()
	q := `INSERT INTO evaluation_jobs (` + jobColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, id, j.ApplicationID, string(status), j.Attempts, j.Error, j.RequestID, now, now); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	span.SetAttributes(attribute.String("job.id", id))
	return id, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.EvaluationJob, error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.Get")
	defer span.End()
	dbAttrs(span, "SELECT", "evaluation_jobs")

	j, err := scanJob(r.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM evaluation_jobs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EvaluationJob{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.EvaluationJob{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// UpdateStatus sets a job's status and error message.
func (r *JobRepo) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus, errMsg *string) error {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.UpdateStatus")
	defer span.End()
	dbAttrs(span, "UPDATE", "evaluation_jobs")
	span.SetAttributes(attribute.String("job.status", string(status)))

	// error is NOT NULL; nil clears it.
	errVal := ""
	if errMsg != nil {
		errVal = *errMsg
	}
	tag, err := r.Pool.Exec(ctx, `UPDATE evaluation_jobs SET status=$2, error=$3, updated_at=$4 WHERE id=$1`,
		id, string(status), errVal, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=job.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=job.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkProcessing claims a queued or stale processing job and increments its
// attempts. Finished or missing jobs yield domain.ErrConflict.
func (r *JobRepo) MarkProcessing(ctx domain.Context, id string) (domain.EvaluationJob, error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.MarkProcessing")
	defer span.End()
	dbAttrs(span, "UPDATE", "evaluation_jobs")

	q := `UPDATE evaluation_jobs SET status='processing', attempts=attempts+1, error='', updated_at=$2
	WHERE id=$1 AND status IN ('queued','processing')
	RETURNING ` + jobColumns
	j, err := scanJob(r.Pool.QueryRow(ctx, q, id, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EvaluationJob{}, fmt.Errorf("op=job.mark_processing: %w", domain.ErrConflict)
		}
		span.RecordError(err)
		return domain.EvaluationJob{}, fmt.Errorf("op=job.mark_processing: %w", err)
	}
	return j, nil
}

// ListStale returns queued or processing jobs not updated since before, oldest first.
func (r *JobRepo) ListStale(ctx domain.Context, before time.Time, limit int) ([]domain.EvaluationJob, error) {
	ctx, span := otel.Tracer("repo.jobs").Start(ctx, "jobs.ListStale")
	defer span.End()
	dbAttrs(span, "SELECT", "evaluation_jobs")

	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + jobColumns + ` FROM evaluation_jobs
	WHERE status IN ('queued','processing') AND updated_at < $1
	ORDER BY updated_at ASC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, before, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("op=job.list_stale: %w", err)
	}
	defer rows.Close()

	var out []domain.EvaluationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list_stale: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list_stale: %w", err)
	}
	span.SetAttributes(attribute.Int("jobs.count", len(out)))
	return out, nil
}
