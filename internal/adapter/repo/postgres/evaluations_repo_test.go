package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

func TestEvaluationRepo_Upsert(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewEvaluationRepo(pool)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	err := repo.Upsert(context.Background(), domain.FinalEvaluation{
		ApplicationID:  "app-1",
		Score:          12,
		RankingScore:   12,
		Weaknesses:     []string{"thin answers"},
		Recommendation: domain.RecommendReject,
		Analysis:       map[string]any{"scores": map[string]any{"text": 80}},
		CreatedAt:      at,
		UpdatedAt:      at,
	})
	require.NoError(t, err)

	require.Len(t, pool.calls, 1)
	c := pool.calls[0]
	assert.Contains(t, c.sql, "ON CONFLICT (application_id)")
	assert.NotContains(t, c.sql, "created_at=EXCLUDED.created_at")
	assert.Equal(t, "app-1", c.args[0])
	assert.Equal(t, "[]", c.args[3], "nil strengths stored as empty array")
	assert.Equal(t, `["thin answers"]`, c.args[4])
	assert.Equal(t, "Reject", c.args[5])
	assert.JSONEq(t, `{"scores":{"text":80}}`, c.args[6].(string))
	assert.Equal(t, at, c.args[7])
}

func TestEvaluationRepo_Upsert_Error(t *testing.T) {
	repo := postgres.NewEvaluationRepo(&poolStub{execErr: assert.AnError})
	err := repo.Upsert(context.Background(), domain.FinalEvaluation{ApplicationID: "app-1"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "op=evaluation.upsert")
}

func TestEvaluationRepo_Get(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	analysis, _ := json.Marshal(map[string]any{"final_decision": map[string]any{"source": "fallback"}})
	pool := &poolStub{rows: []rowStub{{vals: []any{
		"app-1", 12, 12, []byte(`["a"]`), []byte(`[]`), "Reject", analysis, at, at,
	}}}}

	fe, err := postgres.NewEvaluationRepo(pool).GetByApplicationID(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, 12, fe.Score)
	assert.Equal(t, domain.RecommendReject, fe.Recommendation)
	assert.Equal(t, []string{"a"}, fe.Strengths)
	assert.Equal(t, []string{}, fe.Weaknesses)
	assert.Equal(t, "fallback", fe.Analysis["final_decision"].(map[string]any)["source"])
}

func TestEvaluationRepo_Get_NotFound(t *testing.T) {
	pool := &poolStub{rows: []rowStub{{err: pgx.ErrNoRows}}}
	_, err := postgres.NewEvaluationRepo(pool).GetByApplicationID(context.Background(), "app-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
