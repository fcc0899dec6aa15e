//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	containerTypes "github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	port := nat.Port("5432/tcp")

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "app"},
		ExposedPorts: []string{string(port)},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(90 * time.Second),
		HostConfigModifier: func(hc *containerTypes.HostConfig) {
			hc.Tmpfs = map[string]string{"/var/lib/postgresql/data": "rw"}
		},
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/app?sslmode=disable", host, mapped.Port())
	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, file, _, _ := runtime.Caller(0)
	schema, err := os.ReadFile(filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "deploy", "migrations", "0001_init.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	return pool
}

func TestIntegration_RepositoriesRoundTrip(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	seed := []string{
		`INSERT INTO job_forms (id, position_title, required_skills) VALUES ('jf-1', 'Backend Engineer', '["Go"]')`,
		`INSERT INTO questions (id, job_form_id, label, type, position) VALUES ('q-1', 'jf-1', 'Why us?', 'long_text', 1)`,
		`INSERT INTO applications (id, job_form_id, candidate_email, created_at) VALUES ('old', 'jf-1', 'JANE@example.com', now() - interval '30 days')`,
		`INSERT INTO applications (id, job_form_id, candidate_email) VALUES ('app-1', 'jf-1', 'jane@example.com')`,
		`INSERT INTO resumes (id, application_id, file_url, file_type) VALUES ('res-1', 'app-1', 'resumes/jane.pdf', 'pdf')`,
		`INSERT INTO answers (id, application_id, question_id, value) VALUES ('ans-1', 'app-1', 'q-1', 'Because.')`,
	}
	for _, s := range seed {
		_, err := pool.Exec(ctx, s)
		require.NoError(t, err, s)
	}

	apps := postgres.NewApplicationRepo(pool)
	app, err := apps.Get(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, app.Job.RequiredSkills)
	require.NotNil(t, app.Resume)
	assert.Nil(t, app.Interview)
	require.Len(t, app.Answers, 1)
	assert.Equal(t, domain.AnswerText, app.Answers[0].Type)
	assert.Equal(t, "Why us?", app.Answers[0].QuestionLabel)

	n, err := apps.CountPriorByEmail(ctx, app.CandidateEmail, app.CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, postgres.NewResumeRepo(pool).UpdateParsedData(ctx, "res-1", map[string]any{"success": true}))

	evals := postgres.NewEvaluationRepo(pool)
	fe := domain.FinalEvaluation{ApplicationID: "app-1", Score: 12, RankingScore: 12, Recommendation: domain.RecommendReject,
		Analysis: map[string]any{"scores": map[string]any{"text": 80.0}}}
	require.NoError(t, evals.Upsert(ctx, fe))
	fe.Score = 75
	fe.Recommendation = domain.RecommendInterview
	require.NoError(t, evals.Upsert(ctx, fe))

	var rows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM evaluations WHERE application_id='app-1'`).Scan(&rows))
	assert.Equal(t, 1, rows)
	got, err := evals.GetByApplicationID(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, 75, got.Score)
	assert.Equal(t, domain.RecommendInterview, got.Recommendation)

	jobs := postgres.NewJobRepo(pool)
	id, err := jobs.Create(ctx, domain.EvaluationJob{ApplicationID: "app-1"})
	require.NoError(t, err)
	j, err := jobs.MarkProcessing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, j.Attempts)

	stale, err := jobs.ListStale(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	require.NoError(t, jobs.UpdateStatus(ctx, id, domain.JobCompleted, nil))
	_, err = jobs.MarkProcessing(ctx, id)
	assert.ErrorIs(t, err, domain.ErrConflict)
}
