package usecase_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/ai/gateway"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain/mocks"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/usecase"
)

// flakyGateway answers the first request with 503 and the rest with body.
func flakyGateway(t *testing.T, body map[string]any) (*gateway.Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return gateway.New(config.GatewayConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}), &calls
}

func TestParseResume_Retries5xxFromGateway(t *testing.T) {
	gw, calls := flakyGateway(t, map[string]any{
		"success":  true,
		"analysis": map[string]any{"summary": "Go developer", "skills": []any{"Go"}},
	})
	ex := &mocks.MockTextExtractor{}
	ex.On("Extract", mock.Anything, "pdf", mock.Anything).Return("Jane Doe, Go developer", nil)
	p := usecase.NewResumeParser(gw, ex)
	p.RetryBase = time.Millisecond

	res, err := p.Parse(context.Background(), []byte("%PDF-1.4"), "pdf")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.False(t, res.Degraded)
	require.NotNil(t, res.Data.Summary)
	assert.Equal(t, "Go developer", *res.Data.Summary)
}

func TestEvaluateAssignment_Retries5xxFromGateway(t *testing.T) {
	gw, calls := flakyGateway(t, map[string]any{
		"success":  true,
		"response": `{"overall_score": 80, "meets_requirements": true}`,
	})
	e := usecase.NewAssignmentEvaluator(gw, config.DefaultScoring())
	e.RetryDelay = time.Millisecond

	res, err := e.Evaluate(context.Background(), codeAssignment(), domain.JobContext{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.True(t, res.Success)
	assert.Equal(t, 80.0, res.OverallScore)
}
