package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// ApplicationRepo loads the application aggregate the pipeline evaluates.
type ApplicationRepo struct{ Pool PgxPool }

// NewApplicationRepo constructs an ApplicationRepo with the given pool.
func NewApplicationRepo(p PgxPool) *ApplicationRepo { return &ApplicationRepo{Pool: p} }

// The most recent interview, assignment and resume are used when several exist.
const applicationQuery = `SELECT a.id, a.candidate_email, a.created_at,
	COALESCE(f.position_title, ''), COALESCE(f.required_skills, '[]'::jsonb), COALESCE(f.key_topics, '[]'::jsonb),
	COALESCE(f.evaluation_weights, '{}'::jsonb), COALESCE(f.assignment_description, ''),
	i.id, i.media_url, i.media_type, i.transcript,
	s.id, s.type, s.text_fields, s.link_fields,
	r.id, r.file_url, r.file_type
FROM applications a
LEFT JOIN job_forms f ON f.id = a.job_form_id
LEFT JOIN LATERAL (SELECT id, media_url, media_type, transcript FROM interviews
	WHERE application_id = a.id ORDER BY created_at DESC LIMIT 1) i ON true
LEFT JOIN LATERAL (SELECT id, type, text_fields, link_fields FROM assignments
	WHERE application_id = a.id ORDER BY created_at DESC LIMIT 1) s ON true
LEFT JOIN LATERAL (SELECT id, file_url, file_type FROM resumes
	WHERE application_id = a.id ORDER BY created_at DESC LIMIT 1) r ON true
WHERE a.id = $1`

const answersQuery = `SELECT ans.id, COALESCE(ans.question_id, ''), COALESCE(q.label, ''),
	COALESCE(NULLIF(ans.type, ''), q.type, 'text'), ans.value, ans.voice_data
FROM answers ans
LEFT JOIN questions q ON q.id = ans.question_id
WHERE ans.application_id = $1
ORDER BY q.position NULLS LAST, ans.created_at`

// Get loads one application with its interview, assignment, resume, answers
// and the evaluation criteria of its job form.
func (r *ApplicationRepo) Get(ctx domain.Context, id string) (domain.Application, error) {
	ctx, span := otel.Tracer("repo.applications").Start(ctx, "applications.Get")
	defer span.End()
	dbAttrs(span, "SELECT", "applications")

	var (
		app                               domain.Application
		skills, topics, weights           []byte
		ivID, ivURL, ivType, ivTranscript *string
		asgID, asgType                    *string
		asgText, asgLinks                 []byte
		resID, resURL, resType            *string
	)
	err := r.Pool.QueryRow(ctx, applicationQuery, id).Scan(
		&app.ID, &app.CandidateEmail, &app.CreatedAt,
		&app.Job.PositionTitle, &skills, &topics, &weights, &app.Job.AssignmentDescription,
		&ivID, &ivURL, &ivType, &ivTranscript,
		&asgID, &asgType, &asgText, &asgLinks,
		&resID, &resURL, &resType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Application{}, fmt.Errorf("op=application.get: %w", domain.ErrNotFound)
		}
		span.RecordError(err)
		return domain.Application{}, fmt.Errorf("op=application.get: %w", err)
	}

	if err := decodeJSON(skills, &app.Job.RequiredSkills); err != nil {
		return domain.Application{}, fmt.Errorf("op=application.get: required_skills: %w", err)
	}
	if err := decodeJSON(topics, &app.Job.KeyTopics); err != nil {
		return domain.Application{}, fmt.Errorf("op=application.get: key_topics: %w", err)
	}
	if err := decodeJSON(weights, &app.Job.Weights); err != nil {
		return domain.Application{}, fmt.Errorf("op=application.get: evaluation_weights: %w", err)
	}
	app.Job = app.Job.Normalize()

	if ivID != nil {
		app.Interview = &domain.Interview{ID: *ivID, MediaURL: deref(ivURL), MediaType: deref(ivType), Transcript: deref(ivTranscript)}
	}
	if asgID != nil {
		a := &domain.Assignment{ID: *asgID, Type: strings.ToLower(deref(asgType))}
		if err := decodeJSON(asgText, &a.TextFields); err != nil {
			return domain.Application{}, fmt.Errorf("op=application.get: text_fields: %w", err)
		}
		if err := decodeJSON(asgLinks, &a.LinkFields); err != nil {
			return domain.Application{}, fmt.Errorf("op=application.get: link_fields: %w", err)
		}
		app.Assignment = a
	}
	if resID != nil {
		app.Resume = &domain.Resume{ID: *resID, FileURL: deref(resURL), FileType: deref(resType)}
	}

	answers, err := r.answers(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Application{}, err
	}
	app.Answers = answers
	return app, nil
}

func (r *ApplicationRepo) answers(ctx domain.Context, applicationID string) ([]domain.Answer, error) {
	rows, err := r.Pool.Query(ctx, answersQuery, applicationID)
	if err != nil {
		return nil, fmt.Errorf("op=application.answers: %w", err)
	}
	defer rows.Close()

	out := []domain.Answer{}
	for rows.Next() {
		var (
			a       domain.Answer
			rawType string
			voice   []byte
		)
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.QuestionLabel, &rawType, &a.Value, &voice); err != nil {
			return nil, fmt.Errorf("op=application.answers: %w", err)
		}
		a.Type = domain.NormalizeAnswerType(rawType)
		if len(voice) > 0 {
			var vd domain.VoiceData
			if err := json.Unmarshal(voice, &vd); err == nil {
				a.VoiceData = &vd
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=application.answers: %w", err)
	}
	return out, nil
}

// Exists reports whether the application exists.
func (r *ApplicationRepo) Exists(ctx domain.Context, id string) (bool, error) {
	ctx, span := otel.Tracer("repo.applications").Start(ctx, "applications.Exists")
	defer span.End()
	dbAttrs(span, "SELECT", "applications")

	var ok bool
	if err := r.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE id=$1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("op=application.exists: %w", err)
	}
	return ok, nil
}

// CountPriorByEmail counts applications by the same email created before the cutoff.
func (r *ApplicationRepo) CountPriorByEmail(ctx domain.Context, email string, before time.Time) (int, error) {
	ctx, span := otel.Tracer("repo.applications").Start(ctx, "applications.CountPriorByEmail")
	defer span.End()
	dbAttrs(span, "COUNT", "applications")

	q := `SELECT COUNT(*) FROM applications WHERE lower(candidate_email) = lower($1) AND created_at < $2`
	var n int
	if err := r.Pool.QueryRow(ctx, q, email, before).Scan(&n); err != nil {
		return 0, fmt.Errorf("op=application.count_prior: %w", err)
	}
	return n, nil
}

// decodeJSON leaves dst untouched for NULL or empty columns.
func decodeJSON(b []byte, dst any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
