package usecase

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	aiadapter "github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
)

// Assignment recommendations.
const (
	RecommendStrongPass = "Strong Pass"
	RecommendPass       = "Pass"
	RecommendReview     = "Review"
	RecommendFail       = "Fail"
)

const assignmentMaxRetries = 1

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// AssignmentResult is the evaluator output folded into the final analysis.
type AssignmentResult struct {
	Success           bool               `json:"success"`
	Type              string             `json:"assignment_type"`
	Scores            map[string]float64 `json:"scores"`
	Weights           map[string]float64 `json:"weights"`
	OverallScore      float64            `json:"overall_score"`
	WeightedScore     float64            `json:"weighted_score"`
	Strengths         []string           `json:"strengths"`
	Weaknesses        []string           `json:"weaknesses"`
	Feedback          string             `json:"specific_feedback"`
	MeetsRequirements bool               `json:"meets_requirements"`
	Recommendation    string             `json:"recommendation"`
}

// AssignmentEvaluator scores an assignment submission against a rubric.
type AssignmentEvaluator struct {
	Gateway    domain.ModelGateway
	Scoring    config.Scoring
	RetryDelay time.Duration
}

// NewAssignmentEvaluator constructs an AssignmentEvaluator.
func NewAssignmentEvaluator(gw domain.ModelGateway, scoring config.Scoring) *AssignmentEvaluator {
	return &AssignmentEvaluator{Gateway: gw, Scoring: scoring, RetryDelay: defaultRetryBase}
}

// ValidateAssignment lists every problem with the submission.
func ValidateAssignment(a domain.Assignment) []string {
	var problems []string
	if err := getValidator().Struct(a); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Type" {
					problems = append(problems, "type must be one of code, design, video, text")
					continue
				}
				problems = append(problems, strings.ToLower(fe.Field())+" is invalid")
			}
		} else {
			problems = append(problems, err.Error())
		}
	}
	if nonBlank(a.TextFields) == 0 && nonBlank(a.LinkFields) == 0 {
		problems = append(problems, "submission is empty (no text or links)")
	}
	return problems
}

func nonBlank(m map[string]string) int {
	n := 0
	for _, v := range m {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

type assignmentPromptData struct {
	Type       string
	Job        domain.JobContext
	TextFields map[string]string
	LinkFields map[string]string
}

func assignmentTemplate(kind string) string {
	switch kind {
	case domain.AssignmentCode:
		return "assignment_code"
	case domain.AssignmentDesign:
		return "assignment_design"
	default:
		return "assignment_media"
	}
}

// errParseOutput marks model output that could not be used.
var errParseOutput = errors.New("unusable model output")

// Evaluate validates, prompts the model with one retry and scores the result.
func (e *AssignmentEvaluator) Evaluate(ctx domain.Context, a domain.Assignment, job domain.JobContext) (AssignmentResult, error) {
	ctx, span := otel.Tracer("usecase.assignment").Start(ctx, "AssignmentEvaluator.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("assignment.type", a.Type))

	if problems := ValidateAssignment(a); len(problems) > 0 {
		return AssignmentResult{}, domain.NewEvalError(domain.KindValidation, "Invalid assignment data", nil, problems...)
	}
	job = job.Normalize()
	prompt, err := renderPrompt(assignmentTemplate(a.Type), assignmentPromptData{
		Type: a.Type, Job: job, TextFields: a.TextFields, LinkFields: a.LinkFields,
	})
	if err != nil {
		return AssignmentResult{}, err
	}

	lg := obsctx.LoggerFromContext(ctx)
	var parseDetails []string
	op := func() (map[string]any, error) {
		obj, err := e.Gateway.GenerateJSON(ctx, prompt, domain.GenerateOptions{Temperature: ptr(0.2)})
		if err != nil {
			if domain.IsConnectionError(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if domain.IsParseSentinel(obj) {
			parseDetails = []string{"model output is not valid JSON"}
			return nil, errParseOutput
		}
		if verr := assignmentSchema.Validate(obj); verr != nil {
			parseDetails = schemaDetails(verr)
			return nil, errParseOutput
		}
		return obj, nil
	}
	notify := func(err error, d time.Duration) {
		lg.Warn("assignment evaluation attempt failed, retrying", slog.String("error", err.Error()), slog.Duration("delay", d))
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(e.RetryDelay), assignmentMaxRetries), ctx)
	obj, err := backoff.RetryNotifyWithData(op, b, notify)
	if err != nil {
		span.RecordError(err)
		switch {
		case domain.IsConnectionError(err):
			return AssignmentResult{}, domain.NewEvalError(domain.KindUnavailable, "AI evaluation service unavailable", err)
		case errors.Is(err, errParseOutput):
			return AssignmentResult{}, domain.NewEvalError(domain.KindParse, "Failed to parse evaluation result", err, parseDetails...)
		default:
			return AssignmentResult{}, domain.NewEvalError(domain.KindUpstream, "AI evaluation failed", err)
		}
	}
	return e.score(a.Type, obj, job), nil
}

func schemaDetails(err error) []string {
	var verr *aiadapter.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		out = append(out, fe.Field+": "+fe.Message)
	}
	return out
}

func (e *AssignmentEvaluator) score(kind string, obj map[string]any, job domain.JobContext) AssignmentResult {
	weights := MergeWeights(e.Scoring.AssignmentWeights(kind), job.Weights)
	src := asMap(obj["scores"])
	if src == nil {
		src = obj
	}
	scores := make(map[string]float64, len(weights))
	for k := range weights {
		if s, ok := score0to100(src[k]); ok {
			scores[k] = s
		}
	}
	overall, _ := score0to100(obj["overall_score"])
	weighted := WeightedScore(scores, weights, overall)
	meets := asBool(obj["meets_requirements"])
	return AssignmentResult{
		Success:           true,
		Type:              kind,
		Scores:            scores,
		Weights:           weights,
		OverallScore:      overall,
		WeightedScore:     weighted,
		Strengths:         asStringSlice(obj["strengths"]),
		Weaknesses:        asStringSlice(obj["weaknesses"]),
		Feedback:          asString(obj["specific_feedback"]),
		MeetsRequirements: meets,
		Recommendation:    AssignmentRecommendation(weighted, meets),
	}
}

// MergeWeights overlays non-negative job overrides onto the rubric defaults.
// Keys outside the rubric are ignored.
func MergeWeights(defaults, overrides map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		if _, ok := out[k]; ok && v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

// WeightedScore is Σ s·w / Σ w over the scored rubric keys, in [0,100]. When
// nothing is scored or the weights sum to zero it falls back to overall.
func WeightedScore(scores, weights map[string]float64, overall float64) float64 {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var num, den float64
	for _, k := range keys {
		w := weights[k]
		if w <= 0 {
			continue
		}
		num += clamp(scores[k], 0, 100) * w
		den += w
	}
	if den == 0 {
		return round2(clamp(overall, 0, 100))
	}
	return round2(clamp(num/den, 0, 100))
}

// AssignmentRecommendation maps a score to a recommendation.
func AssignmentRecommendation(score float64, meetsRequirements bool) string {
	switch {
	case !meetsRequirements && score < 70:
		return RecommendFail
	case score >= 85:
		return RecommendStrongPass
	case score >= 70:
		return RecommendPass
	case score >= 50:
		return RecommendReview
	default:
		return RecommendFail
	}
}
