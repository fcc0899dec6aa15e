package usecase

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// ResultService provides read access to stored evaluations and job status.
type ResultService struct {
	Jobs        domain.JobRepository
	Evaluations domain.EvaluationRepository
}

// NewResultService constructs a ResultService with the given repositories.
func NewResultService(j domain.JobRepository, e domain.EvaluationRepository) ResultService {
	return ResultService{Jobs: j, Evaluations: e}
}

// Evaluation returns the stored FinalEvaluation of an application.
func (s ResultService) Evaluation(ctx domain.Context, applicationID string) (domain.FinalEvaluation, error) {
	if strings.TrimSpace(applicationID) == "" {
		return domain.FinalEvaluation{}, fmt.Errorf("%w: application id required", domain.ErrInvalidArgument)
	}
	return s.Evaluations.GetByApplicationID(ctx, applicationID)
}

// Job returns one evaluation job.
func (s ResultService) Job(ctx domain.Context, jobID string) (domain.EvaluationJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.EvaluationJob{}, fmt.Errorf("%w: job id required", domain.ErrInvalidArgument)
	}
	return s.Jobs.Get(ctx, jobID)
}
