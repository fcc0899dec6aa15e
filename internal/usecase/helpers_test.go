package usecase_test

import (
	"context"
	"errors"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

func init() { observability.InitMetrics() }

// Prompt markers used to route gateway mock calls.
const (
	markAssignment = "assignment for the position"
	markInterview  = "analyzing the transcript"
	markResumeFit  = "comparing a parsed resume"
	markRefine     = "Clean up the following spoken answer"
	markAnswer     = "answer to an application question"
	markAggregate  = "building a candidate profile"
	markFinal      = "hiring committee"
)

func promptWith(marker string) any {
	return mock.MatchedBy(func(p string) bool { return strings.Contains(p, marker) })
}

func refusedErr() error {
	return &url.Error{Op: "Post", URL: "http://gateway/generate", Err: &net.OpError{
		Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}}
}

// memEvaluations is an in-memory EvaluationRepository with upsert semantics.
type memEvaluations struct {
	mu      sync.Mutex
	rows    map[string]domain.FinalEvaluation
	upserts int
	fail    error
}

func newMemEvaluations() *memEvaluations {
	return &memEvaluations{rows: map[string]domain.FinalEvaluation{}}
}

func (m *memEvaluations) Upsert(_ context.Context, e domain.FinalEvaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.upserts++
	if prev, ok := m.rows[e.ApplicationID]; ok {
		e.CreatedAt = prev.CreatedAt
	}
	m.rows[e.ApplicationID] = e
	return nil
}

func (m *memEvaluations) GetByApplicationID(_ context.Context, id string) (domain.FinalEvaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return domain.FinalEvaluation{}, domain.ErrNotFound
	}
	return e, nil
}

var errBoom = errors.New("boom")
