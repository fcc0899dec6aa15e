package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
)

// Decision sources recorded on the final decision.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Stage names.
const (
	StageHistory    = "history"
	StageInterview  = "interview"
	StageAssignment = "assignment"
	StageResume     = "resume"
	StageAnswers    = "answers"
	StageFinal      = "final_decision"
	StagePersist    = "persist"
)

// FinalDecision is the synthesis output, from the model or the fallback formula.
type FinalDecision struct {
	StageEvaluations map[string]any        `json:"stage_evaluations"`
	FinalScore       int                   `json:"final_score"`
	Decision         domain.Recommendation `json:"decision"`
	DecisionReason   string                `json:"decision_reason"`
	ActionItem       string                `json:"action_item"`
	Source           string                `json:"source"`
	SchemaViolations []string              `json:"schema_violations,omitempty"`
}

// ResumeStage is the resume branch output.
type ResumeStage struct {
	ParseResult
	// Analysis is the resume-to-job fit scoring, when it succeeded.
	Analysis map[string]any `json:"analysis,omitempty"`
}

// PipelineDeps are the collaborators of a Pipeline.
type PipelineDeps struct {
	Applications domain.ApplicationRepository
	Resumes      domain.ResumeRepository
	Evaluations  domain.EvaluationRepository
	Media        domain.MediaStore
	Gateway      domain.ModelGateway
	Transcriber  domain.Transcriber
	Extractor    domain.TextExtractor
}

// Pipeline is the evaluation orchestrator: it runs every evaluator for one
// application and upserts one FinalEvaluation.
type Pipeline struct {
	deps       PipelineDeps
	scoring    config.Scoring
	Resume     *ResumeParser
	Assignment *AssignmentEvaluator
	Interview  *InterviewAnalyzer
	Answers    *AnswerEvaluator
	Now        func() time.Time
}

// NewPipeline wires the evaluators over the given collaborators.
func NewPipeline(d PipelineDeps, scoring config.Scoring) *Pipeline {
	return &Pipeline{
		deps:       d,
		scoring:    scoring,
		Resume:     NewResumeParser(d.Gateway, d.Extractor),
		Assignment: NewAssignmentEvaluator(d.Gateway, scoring),
		Interview:  NewInterviewAnalyzer(d.Gateway, d.Transcriber),
		Answers:    NewAnswerEvaluator(d.Gateway, d.Transcriber, d.Media),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// runState accumulates stage results for one run.
type runState struct {
	analysis map[string]any
	meta     map[string]any
}

func (s *runState) record(stage string, start time.Time, err error, skipped bool) {
	outcome := "ok"
	entry := map[string]any{"duration_ms": time.Since(start).Milliseconds()}
	switch {
	case skipped:
		outcome = "skipped"
	case err != nil:
		outcome = "error"
		entry["error"] = err.Error()
	}
	entry["outcome"] = outcome
	s.meta[stage] = entry
	observability.ObserveStage(stage, outcome)
}

// stageFailure renders a branch error for the audit record.
func stageFailure(err error) map[string]any {
	var ee *domain.EvalError
	if errors.As(err, &ee) {
		return ee.Outcome()
	}
	return map[string]any{"success": false, "error": err.Error(), "kind": string(domain.KindOf(err))}
}

// ProcessEvaluation runs the pipeline for one application and only logs
// failures. It loads the aggregate when app is nil and never panics.
func (p *Pipeline) ProcessEvaluation(ctx domain.Context, app *domain.Application, applicationID string) {
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("application_id", applicationID))
	defer func() {
		if r := recover(); r != nil {
			lg.Error("evaluation panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	if app == nil {
		loaded, err := p.deps.Applications.Get(ctx, applicationID)
		if err != nil {
			lg.Error("load application failed", slog.String("error", err.Error()))
			return
		}
		app = &loaded
	}
	if app.ID == "" {
		app.ID = applicationID
	}
	if _, err := SafeRun(ctx, *app, p.Run); err != nil {
		lg.Error("evaluation not persisted", slog.String("error", err.Error()))
		return
	}
	lg.Info("evaluation completed")
}

// SafeRun calls run and turns a panic into an internal EvalError, logging the stack.
func SafeRun(ctx domain.Context, app domain.Application,
	run func(domain.Context, domain.Application) (domain.FinalEvaluation, error)) (fe domain.FinalEvaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			obsctx.LoggerFromContext(ctx).Error("evaluation panicked",
				slog.String("application_id", app.ID), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			fe = domain.FinalEvaluation{}
			err = domain.NewEvalError(domain.KindInternal, "evaluation panicked", fmt.Errorf("%v", r))
		}
	}()
	return run(ctx, app)
}

// Run executes every stage and upserts the FinalEvaluation. Branch failures are
// recorded in the analysis; the returned error is the persistence failure only.
func (p *Pipeline) Run(ctx domain.Context, app domain.Application) (domain.FinalEvaluation, error) {
	ctx, span := otel.Tracer("usecase.pipeline").Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("application_id", app.ID))

	ctx, lg := obsctx.WithAttrs(ctx, slog.String("application_id", app.ID))
	started := p.Now()
	app.Job = app.Job.Normalize()
	st := &runState{analysis: map[string]any{}, meta: map[string]any{}}

	prior := p.history(ctx, app, st)
	iv := p.interviewStage(ctx, app, st)
	asg := p.assignmentStage(ctx, app, st)
	rs := p.resumeStage(ctx, app, st)
	ans := p.answersStage(ctx, app, st)

	scores := StageScores{
		Text:  TextScore(ans.Profile, ans.Text),
		Voice: VoiceScore(ans.Voice),
	}
	if asg != nil {
		scores.Assignment = asg.OverallScore
	}
	if iv != nil && iv.Analysis != nil {
		scores.Interview = InterviewScore(iv.Analysis)
	}
	if rs != nil && rs.Success {
		scores.Resume = ResumeScore(&rs.Data, app.Job.RequiredSkills, p.scoring.ResumeExperienceBonus)
	}
	st.analysis["scores"] = scores

	decision := p.finalDecision(ctx, app, prior, scores, iv, asg, rs, ans, st)
	st.analysis["final_decision"] = decision

	var strengths, weaknesses []string
	if iv != nil {
		strengths = append(strengths, asStringSlice(iv.Analysis["strengths"])...)
		weaknesses = append(weaknesses, asStringSlice(iv.Analysis["weaknesses"])...)
	}
	if asg != nil {
		strengths = append(strengths, asg.Strengths...)
		weaknesses = append(weaknesses, asg.Weaknesses...)
	}
	if ans.Profile != nil {
		strengths = append(strengths, ans.Profile.Strengths...)
		weaknesses = append(weaknesses, ans.Profile.Weaknesses...)
	}

	st.meta["started_at"] = started.Format(time.RFC3339)
	st.meta["duration_ms"] = p.Now().Sub(started).Milliseconds()
	st.analysis["meta"] = st.meta

	now := p.Now()
	fe := domain.FinalEvaluation{
		ApplicationID:  app.ID,
		Score:          decision.FinalScore,
		RankingScore:   decision.FinalScore,
		Strengths:      MergeHighlights(strengths),
		Weaknesses:     MergeHighlights(weaknesses),
		Recommendation: decision.Decision,
		Analysis:       st.analysis,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	start := time.Now()
	if err := p.deps.Evaluations.Upsert(ctx, fe); err != nil {
		observability.ObserveStage(StagePersist, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return fe, fmt.Errorf("op=pipeline.persist: %w", err)
	}
	observability.ObserveStage(StagePersist, "ok")
	observability.ObserveEvaluation(fe.Score, string(fe.Recommendation), decision.Source)
	lg.Info("evaluation persisted",
		slog.Int("score", fe.Score), slog.String("recommendation", string(fe.Recommendation)),
		slog.String("source", decision.Source), slog.Duration("elapsed", time.Since(start)))
	return fe, nil
}

func (p *Pipeline) history(ctx domain.Context, app domain.Application, st *runState) int {
	start := time.Now()
	if app.CandidateEmail == "" {
		st.record(StageHistory, start, nil, true)
		return 0
	}
	n, err := p.deps.Applications.CountPriorByEmail(ctx, app.CandidateEmail, app.CreatedAt)
	st.record(StageHistory, start, err, false)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("candidate history lookup failed", slog.String("error", err.Error()))
		n = 0
	}
	st.analysis["candidate_history"] = map[string]any{"prior_applications": n}
	return n
}

func (p *Pipeline) interviewStage(ctx domain.Context, app domain.Application, st *runState) *InterviewResult {
	ctx, span := otel.Tracer("usecase.pipeline").Start(ctx, "Pipeline.interview")
	defer span.End()
	start := time.Now()

	iv := app.Interview
	if iv == nil || (strings.TrimSpace(iv.MediaURL) == "" && strings.TrimSpace(iv.Transcript) == "") {
		st.record(StageInterview, start, nil, true)
		return nil
	}

	res, err := func() (InterviewResult, error) {
		if strings.TrimSpace(iv.MediaURL) == "" {
			return p.Interview.Analyze(ctx, InterviewInput{Transcript: iv.Transcript}, domain.MediaTranscript, app.Job)
		}
		file, err := p.deps.Media.Download(ctx, iv.MediaURL)
		if err != nil {
			return InterviewResult{}, err
		}
		defer func() { _ = os.Remove(file) }()
		return p.Interview.Analyze(ctx, InterviewInput{Path: file}, interviewMediaType(iv, file), app.Job)
	}()
	st.record(StageInterview, start, err, false)
	if err != nil {
		span.RecordError(err)
		obsctx.LoggerFromContext(ctx).Warn("interview stage failed", slog.String("stage", StageInterview), slog.String("error", err.Error()))
		st.analysis["interview"] = stageFailure(err)
		return nil
	}
	st.analysis["interview"] = res
	return &res
}

// interviewMediaType uses the recorded media type, else the reference extension,
// else the sniffed content of the downloaded file. Unknown media is treated as video.
func interviewMediaType(iv *domain.Interview, file string) string {
	switch strings.ToLower(iv.MediaType) {
	case domain.MediaAudio:
		return domain.MediaAudio
	case domain.MediaVideo:
		return domain.MediaVideo
	}
	switch strings.ToLower(path.Ext(strings.SplitN(iv.MediaURL, "?", 2)[0])) {
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac", ".aac":
		return domain.MediaAudio
	case ".mp4", ".mov", ".webm", ".mkv", ".avi":
		return domain.MediaVideo
	}
	if m, err := mimetype.DetectFile(file); err == nil && strings.HasPrefix(m.String(), "audio/") {
		return domain.MediaAudio
	}
	return domain.MediaVideo
}

func (p *Pipeline) assignmentStage(ctx domain.Context, app domain.Application, st *runState) *AssignmentResult {
	start := time.Now()
	if app.Assignment == nil {
		st.record(StageAssignment, start, nil, true)
		return nil
	}
	res, err := p.Assignment.Evaluate(ctx, *app.Assignment, app.Job)
	st.record(StageAssignment, start, err, false)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("assignment stage failed", slog.String("stage", StageAssignment), slog.String("error", err.Error()))
		st.analysis["assignment"] = stageFailure(err)
		return nil
	}
	st.analysis["assignment"] = res
	return &res
}

type resumeFitPromptData struct {
	Job        domain.JobContext
	ResumeJSON string
}

func (p *Pipeline) resumeStage(ctx domain.Context, app domain.Application, st *runState) *ResumeStage {
	ctx, span := otel.Tracer("usecase.pipeline").Start(ctx, "Pipeline.resume")
	defer span.End()
	start := time.Now()

	rv := app.Resume
	if rv == nil || strings.TrimSpace(rv.FileURL) == "" {
		st.record(StageResume, start, nil, true)
		return nil
	}
	lg := obsctx.LoggerFromContext(ctx)

	res, err := func() (ParseResult, error) {
		data, err := p.deps.Media.Fetch(ctx, rv.FileURL)
		if err != nil {
			return ParseResult{}, err
		}
		return p.Resume.Parse(ctx, data, resumeFileType(rv, data))
	}()
	st.record(StageResume, start, err, false)
	if err != nil {
		span.RecordError(err)
		lg.Warn("resume stage failed", slog.String("stage", StageResume), slog.String("error", err.Error()))
		st.analysis["resume"] = stageFailure(err)
		return nil
	}

	if rv.ID != "" {
		if err := p.deps.Resumes.UpdateParsedData(ctx, rv.ID, res); err != nil {
			lg.Warn("storing parsed resume failed", slog.String("error", err.Error()))
		}
	}

	out := &ResumeStage{ParseResult: res}
	if res.Success {
		if fit, err := p.resumeFit(ctx, app.Job, res.Data); err != nil {
			lg.Warn("resume fit scoring failed", slog.String("error", err.Error()))
		} else {
			out.Analysis = fit
		}
	}
	st.analysis["resume"] = out
	return out
}

func (p *Pipeline) resumeFit(ctx domain.Context, job domain.JobContext, data ResumeData) (map[string]any, error) {
	prompt, err := renderPrompt("resume_fit", resumeFitPromptData{Job: job, ResumeJSON: compactJSON(data)})
	if err != nil {
		return nil, err
	}
	obj, err := p.deps.Gateway.GenerateJSON(ctx, prompt, domain.GenerateOptions{Temperature: ptr(0.2)})
	if err != nil {
		return nil, err
	}
	if domain.IsParseSentinel(obj) {
		return nil, domain.NewEvalError(domain.KindParse, "resume fit unparseable", nil)
	}
	fit := map[string]any{
		"qualification_summary":   asString(obj["qualification_summary"]),
		"missing_critical_skills": asStringSlice(obj["missing_critical_skills"]),
		"experience_relevance":    asString(obj["experience_relevance"]),
	}
	if s, ok := score0to100(obj["match_score"]); ok {
		fit["match_score"] = s
	}
	return fit, nil
}

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// resumeFileType uses the recorded type, else the reference extension, else the
// sniffed content. An unsupported answer is passed through for the parser to reject.
func resumeFileType(r *domain.Resume, data []byte) string {
	t := strings.ToLower(strings.TrimPrefix(r.FileType, "."))
	switch t {
	case "application/pdf":
		t = "pdf"
	case docxMIME:
		t = "docx"
	case "":
		t = strings.TrimPrefix(strings.ToLower(path.Ext(strings.SplitN(r.FileURL, "?", 2)[0])), ".")
	}
	if t == "pdf" || t == "docx" {
		return t
	}
	m := mimetype.Detect(data)
	switch {
	case m.Is("application/pdf"):
		return "pdf"
	case m.Is(docxMIME):
		return "docx"
	}
	return t
}

func (p *Pipeline) answersStage(ctx domain.Context, app domain.Application, st *runState) AnswersResult {
	start := time.Now()
	if len(app.Answers) == 0 {
		st.record(StageAnswers, start, nil, true)
		return AnswersResult{Voice: []VoiceAnswerResult{}, Text: []TextAnswerResult{}}
	}
	res := p.Answers.Evaluate(ctx, app.Answers, app.Job)
	st.record(StageAnswers, start, nil, false)
	st.analysis["voice_transcripts"] = res.Voice
	st.analysis["qa_analysis"] = map[string]any{"answers": res.Text, "profile": res.Profile}
	return res
}

type finalPromptData struct {
	Job               domain.JobContext
	PriorApplications int
	Interview         string
	Assignment        string
	Resume            string
	Voice             string
	Text              string
}

func (p *Pipeline) finalDecision(ctx domain.Context, app domain.Application, prior int, scores StageScores,
	iv *InterviewResult, asg *AssignmentResult, rs *ResumeStage, ans AnswersResult, st *runState) FinalDecision {
	ctx, span := otel.Tracer("usecase.pipeline").Start(ctx, "Pipeline.finalDecision")
	defer span.End()
	start := time.Now()

	data := finalPromptData{Job: app.Job, PriorApplications: prior,
		Interview: "N/A", Assignment: "N/A", Resume: "N/A", Voice: "N/A", Text: "N/A"}
	if iv != nil {
		data.Interview = compactJSON(map[string]any{"score": scores.Interview, "summary": iv.Analysis["summary"],
			"metrics": iv.Analysis["metrics"], "red_flags": iv.Analysis["red_flags"]})
	}
	if asg != nil {
		data.Assignment = compactJSON(map[string]any{"type": asg.Type, "overall_score": asg.OverallScore,
			"weighted_score": asg.WeightedScore, "recommendation": asg.Recommendation, "feedback": asg.Feedback})
	}
	if rs != nil && rs.Success {
		data.Resume = compactJSON(map[string]any{"score": scores.Resume, "confidence": rs.Confidence,
			"skills": rs.Data.Skills, "fit": rs.Analysis})
	}
	if len(ans.Voice) > 0 {
		brief := make([]map[string]any, 0, len(ans.Voice))
		for _, v := range ans.Voice {
			brief = append(brief, map[string]any{"question": v.Question, "answer": v.RefinedTranscript, "quality_score": v.QualityScore})
		}
		data.Voice = compactJSON(map[string]any{"score": scores.Voice, "answers": brief})
	}
	if len(ans.Text) > 0 {
		t := map[string]any{"score": scores.Text}
		if ans.Profile != nil {
			t["summary"] = ans.Profile.SmartSummary
			t["red_flags"] = ans.Profile.RedFlags
		}
		data.Text = compactJSON(t)
	}

	fallback := func(cause error) FinalDecision {
		score := FallbackScore(scores, p.scoring.Fallback)
		d := DecisionFor(score, p.scoring.DecisionThreshold)
		obsctx.LoggerFromContext(ctx).Warn("final synthesis failed, using fallback formula",
			slog.String("stage", StageFinal), slog.Int("final_score", score), slog.String("error", cause.Error()))
		return FinalDecision{
			StageEvaluations: map[string]any{},
			FinalScore:       score,
			Decision:         d,
			DecisionReason:   "Model synthesis unavailable; score computed from weighted stage scores.",
			ActionItem:       string(d),
			Source:           SourceFallback,
		}
	}

	prompt, err := renderPrompt("final_decision", data)
	if err == nil {
		var obj map[string]any
		obj, err = p.deps.Gateway.GenerateJSON(ctx, prompt, domain.GenerateOptions{Temperature: ptr(0.2)})
		if err == nil && domain.IsParseSentinel(obj) {
			err = domain.NewEvalError(domain.KindParse, "final decision unparseable", nil)
		}
		if err == nil {
			st.record(StageFinal, start, nil, false)
			return p.coerceDecision(obj)
		}
	}
	span.RecordError(err)
	st.record(StageFinal, start, err, false)
	return fallback(err)
}

// coerceDecision reads a parseable model decision, tolerating schema drift.
func (p *Pipeline) coerceDecision(obj map[string]any) FinalDecision {
	d := FinalDecision{
		StageEvaluations: asMap(obj["stage_evaluations"]),
		DecisionReason:   asString(obj["decision_reason"]),
		ActionItem:       asString(obj["action_item"]),
		Source:           SourceModel,
	}
	if d.StageEvaluations == nil {
		d.StageEvaluations = map[string]any{}
	}
	if err := finalDecisionSchema.Validate(obj); err != nil {
		d.SchemaViolations = schemaDetails(err)
	}
	score, _ := score0to100(obj["final_score"])
	d.FinalScore = int(score + 0.5)
	switch strings.ToLower(asString(obj["decision"])) {
	case "interview":
		d.Decision = domain.RecommendInterview
	case "reject":
		d.Decision = domain.RecommendReject
	case "review":
		d.Decision = domain.RecommendReview
	default:
		d.Decision = DecisionFor(d.FinalScore, p.scoring.DecisionThreshold)
	}
	return d
}
