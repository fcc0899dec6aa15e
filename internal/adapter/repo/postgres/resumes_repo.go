package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// ResumeRepo stores parser output on resume rows.
type ResumeRepo struct{ Pool PgxPool }

// NewResumeRepo constructs a ResumeRepo with the given pool.
func NewResumeRepo(p PgxPool) *ResumeRepo { return &ResumeRepo{Pool: p} }

// UpdateParsedData replaces parsed_data with the JSON encoding of parsed.
func (r *ResumeRepo) UpdateParsedData(ctx domain.Context, resumeID string, parsed any) error {
	ctx, span := otel.Tracer("repo.resumes").Start(ctx, "resumes.UpdateParsedData")
	defer span.End()
	dbAttrs(span, "UPDATE", "resumes")

	b, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("op=resume.update_parsed: %w", err)
	}
	tag, err := r.Pool.Exec(ctx, `UPDATE resumes SET parsed_data=$2, updated_at=$3 WHERE id=$1`, resumeID, string(b), time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("op=resume.update_parsed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=resume.update_parsed: %w", domain.ErrNotFound)
	}
	return nil
}
