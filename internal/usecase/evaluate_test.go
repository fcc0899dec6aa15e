package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain/mocks"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/usecase"
)

func TestTrigger_QueuesJob(t *testing.T) {
	apps := &mocks.MockApplicationRepository{}
	jobs := &mocks.MockJobRepository{}
	q := &mocks.MockQueue{}

	apps.On("Exists", mock.Anything, "app-1").Return(true, nil).Once()
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j domain.EvaluationJob) bool {
		return j.ApplicationID == "app-1" && j.Status == domain.JobQueued && j.RequestID == "req-9"
	})).Return("job-1", nil).Once()
	q.On("EnqueueEvaluate", mock.Anything, domain.EvaluateTaskPayload{JobID: "job-1", ApplicationID: "app-1", RequestID: "req-9"}).
		Return("task-1", nil).Once()

	svc := usecase.NewEvaluateService(apps, jobs, q)
	ctx := obsctx.ContextWithRequestID(context.Background(), "req-9")
	id, err := svc.Trigger(ctx, " app-1 ")
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)

	apps.AssertExpectations(t)
	jobs.AssertExpectations(t)
	q.AssertExpectations(t)
}

func TestTrigger_Validation(t *testing.T) {
	svc := usecase.NewEvaluateService(&mocks.MockApplicationRepository{}, &mocks.MockJobRepository{}, &mocks.MockQueue{})
	_, err := svc.Trigger(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTrigger_UnknownApplication(t *testing.T) {
	apps := &mocks.MockApplicationRepository{}
	jobs := &mocks.MockJobRepository{}
	apps.On("Exists", mock.Anything, "nope").Return(false, nil).Once()

	_, err := usecase.NewEvaluateService(apps, jobs, &mocks.MockQueue{}).Trigger(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTrigger_EnqueueFailureMarksJobFailed(t *testing.T) {
	apps := &mocks.MockApplicationRepository{}
	jobs := &mocks.MockJobRepository{}
	q := &mocks.MockQueue{}
	apps.On("Exists", mock.Anything, "app-1").Return(true, nil)
	jobs.On("Create", mock.Anything, mock.Anything).Return("job-2", nil)
	q.On("EnqueueEvaluate", mock.Anything, mock.Anything).Return("", errBoom)
	jobs.On("UpdateStatus", mock.Anything, "job-2", domain.JobFailed, mock.MatchedBy(func(s *string) bool {
		return s != nil && *s == "enqueue failed"
	})).Return(nil).Once()

	_, err := usecase.NewEvaluateService(apps, jobs, q).Trigger(context.Background(), "app-1")
	assert.ErrorIs(t, err, errBoom)
	jobs.AssertExpectations(t)
}

func TestResultService(t *testing.T) {
	jobs := &mocks.MockJobRepository{}
	evals := newMemEvaluations()
	require.NoError(t, evals.Upsert(context.Background(), domain.FinalEvaluation{ApplicationID: "app-1", Score: 55}))
	jobs.On("Get", mock.Anything, "job-1").Return(domain.EvaluationJob{ID: "job-1", Status: domain.JobCompleted}, nil)

	svc := usecase.NewResultService(jobs, evals)
	fe, err := svc.Evaluation(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, 55, fe.Score)

	_, err = svc.Evaluation(context.Background(), "app-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Evaluation(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	j, err := svc.Job(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, j.Status)
	_, err = svc.Job(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
