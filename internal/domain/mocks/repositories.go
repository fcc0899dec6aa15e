// Package mocks holds testify mocks of the domain ports.
package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// MockApplicationRepository is a mock of domain.ApplicationRepository.
type MockApplicationRepository struct{ mock.Mock }

func (m *MockApplicationRepository) Get(ctx domain.Context, id string) (domain.Application, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Application), args.Error(1)
}

func (m *MockApplicationRepository) Exists(ctx domain.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockApplicationRepository) CountPriorByEmail(ctx domain.Context, email string, before time.Time) (int, error) {
	args := m.Called(ctx, email, before)
	return args.Int(0), args.Error(1)
}

// MockResumeRepository is a mock of domain.ResumeRepository.
type MockResumeRepository struct{ mock.Mock }

func (m *MockResumeRepository) UpdateParsedData(ctx domain.Context, resumeID string, parsed any) error {
	return m.Called(ctx, resumeID, parsed).Error(0)
}

// MockEvaluationRepository is a mock of domain.EvaluationRepository.
type MockEvaluationRepository struct{ mock.Mock }

func (m *MockEvaluationRepository) Upsert(ctx domain.Context, e domain.FinalEvaluation) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockEvaluationRepository) GetByApplicationID(ctx domain.Context, applicationID string) (domain.FinalEvaluation, error) {
	args := m.Called(ctx, applicationID)
	return args.Get(0).(domain.FinalEvaluation), args.Error(1)
}

// MockJobRepository is a mock of domain.JobRepository.
type MockJobRepository struct{ mock.Mock }

func (m *MockJobRepository) Create(ctx domain.Context, j domain.EvaluationJob) (string, error) {
	args := m.Called(ctx, j)
	return args.String(0), args.Error(1)
}

func (m *MockJobRepository) Get(ctx domain.Context, id string) (domain.EvaluationJob, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.EvaluationJob), args.Error(1)
}

func (m *MockJobRepository) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus, errMsg *string) error {
	return m.Called(ctx, id, status, errMsg).Error(0)
}

func (m *MockJobRepository) MarkProcessing(ctx domain.Context, id string) (domain.EvaluationJob, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.EvaluationJob), args.Error(1)
}

func (m *MockJobRepository) ListStale(ctx domain.Context, before time.Time, limit int) ([]domain.EvaluationJob, error) {
	args := m.Called(ctx, before, limit)
	jobs, _ := args.Get(0).([]domain.EvaluationJob)
	return jobs, args.Error(1)
}

// MockQueue is a mock of domain.Queue.
type MockQueue struct{ mock.Mock }

func (m *MockQueue) EnqueueEvaluate(ctx domain.Context, payload domain.EvaluateTaskPayload) (string, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Error(1)
}

// MockEvaluationLock is a mock of domain.EvaluationLock.
type MockEvaluationLock struct{ mock.Mock }

func (m *MockEvaluationLock) Acquire(ctx domain.Context, applicationID string) (func(domain.Context), bool, error) {
	args := m.Called(ctx, applicationID)
	release, _ := args.Get(0).(func(domain.Context))
	if release == nil {
		release = func(domain.Context) {}
	}
	return release, args.Bool(1), args.Error(2)
}
