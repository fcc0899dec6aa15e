package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// EvaluationRepo persists one FinalEvaluation per application.
type EvaluationRepo struct{ Pool PgxPool }

// NewEvaluationRepo constructs an EvaluationRepo with the given pool.
func NewEvaluationRepo(p PgxPool) *EvaluationRepo { return &EvaluationRepo{Pool: p} }

// Upsert inserts or replaces the evaluation keyed by application_id. The
// original created_at is kept on update.
func (r *EvaluationRepo) Upsert(ctx domain.Context, e domain.FinalEvaluation) error {
	ctx, span := otel.Tracer("repo.evaluations").Start(ctx, "evaluations.Upsert")
	defer span.End()
	dbAttrs(span, "UPSERT", "evaluations")

	strengths, err := json.Marshal(nonNil(e.Strengths))
	if err != nil {
		return fmt.Errorf("op=evaluation.upsert: %w", err)
	}
	weaknesses, err := json.Marshal(nonNil(e.Weaknesses))
	if err != nil {
		return fmt.Errorf("op=evaluation.upsert: %w", err)
	}
	analysis, err := json.Marshal(e.Analysis)
	if err != nil {
		return fmt.Errorf("op=evaluation.upsert: analysis: %w", err)
	}
	now := time.Now().UTC()
	created, updated := e.CreatedAt, e.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	q := `INSERT INTO evaluations (application_id, score, ranking_score, strengths, weaknesses, recommendation, analysis, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	ON CONFLICT (application_id)
	DO UPDATE SET score=EXCLUDED.score, ranking_score=EXCLUDED.ranking_score, strengths=EXCLUDED.strengths,
		weaknesses=EXCLUDED.weaknesses, recommendation=EXCLUDED.recommendation, analysis=EXCLUDED.analysis,
		updated_at=EXCLUDED.updated_at`
	_, err = r.Pool.Exec(ctx, q, e.ApplicationID, e.Score, e.RankingScore, string(strengths), string(weaknesses),
		string(e.Recommendation), string(analysis), created, updated)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=evaluation.upsert: %w", err)
	}
	return nil
}

// GetByApplicationID loads the evaluation of an application.
func (r *EvaluationRepo) GetByApplicationID(ctx domain.Context, applicationID string) (domain.FinalEvaluation, error) {
	ctx, span := otel.Tracer("repo.evaluations").Start(ctx, "evaluations.GetByApplicationID")
	defer span.End()
	dbAttrs(span, "SELECT", "evaluations")

	q := `SELECT application_id, score, ranking_score, strengths, weaknesses, recommendation, analysis, created_at, updated_at
	FROM evaluations WHERE application_id=$1`
	var (
		e                               domain.FinalEvaluation
		rec                             string
		strengths, weaknesses, analysis []byte
	)
	err := r.Pool.QueryRow(ctx, q, applicationID).Scan(&e.ApplicationID, &e.Score, &e.RankingScore,
		&strengths, &weaknesses, &rec, &analysis, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FinalEvaluation{}, fmt.Errorf("op=evaluation.get: %w", domain.ErrNotFound)
		}
		return domain.FinalEvaluation{}, fmt.Errorf("op=evaluation.get: %w", err)
	}
	e.Recommendation = domain.Recommendation(rec)
	e.Strengths, e.Weaknesses = []string{}, []string{}
	if err := decodeJSON(strengths, &e.Strengths); err != nil {
		return domain.FinalEvaluation{}, fmt.Errorf("op=evaluation.get: strengths: %w", err)
	}
	if err := decodeJSON(weaknesses, &e.Weaknesses); err != nil {
		return domain.FinalEvaluation{}, fmt.Errorf("op=evaluation.get: weaknesses: %w", err)
	}
	if err := decodeJSON(analysis, &e.Analysis); err != nil {
		return domain.FinalEvaluation{}, fmt.Errorf("op=evaluation.get: analysis: %w", err)
	}
	return e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
