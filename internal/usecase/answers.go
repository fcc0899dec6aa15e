package usecase

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
)

// VoiceAnswerResult is one processed voice answer.
type VoiceAnswerResult struct {
	AnswerID           string         `json:"answer_id"`
	QuestionID         string         `json:"question_id"`
	Question           string         `json:"question"`
	RawTranscript      string         `json:"raw_transcript"`
	RefinedTranscript  string         `json:"refined_transcript"`
	Duration           float64        `json:"duration"`
	TranscriptFallback bool           `json:"transcript_fallback,omitempty"`
	QualityScore       float64        `json:"quality_score"`
	Analysis           map[string]any `json:"analysis"`
}

// TextAnswerResult is one scored written answer.
type TextAnswerResult struct {
	AnswerID     string         `json:"answer_id"`
	QuestionID   string         `json:"question_id"`
	Question     string         `json:"question"`
	Answer       string         `json:"answer"`
	QualityScore *float64       `json:"quality_score"`
	Analysis     map[string]any `json:"analysis"`
}

// TextProfile is the synthesis over all written answers.
type TextProfile struct {
	InferredFacts  []string `json:"inferred_facts"`
	SmartSummary   string   `json:"smart_summary"`
	AlignmentScore *float64 `json:"alignment_score"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	RedFlags       []string `json:"red_flags"`
}

// AnswersResult groups the answer branch output.
type AnswersResult struct {
	Voice   []VoiceAnswerResult `json:"voice"`
	Text    []TextAnswerResult  `json:"text"`
	Profile *TextProfile        `json:"profile"`
}

// AnswerEvaluator processes free-form application answers.
type AnswerEvaluator struct {
	Gateway     domain.ModelGateway
	Transcriber domain.Transcriber
	Media       domain.MediaStore
}

// NewAnswerEvaluator constructs an AnswerEvaluator.
func NewAnswerEvaluator(gw domain.ModelGateway, tr domain.Transcriber, media domain.MediaStore) *AnswerEvaluator {
	return &AnswerEvaluator{Gateway: gw, Transcriber: tr, Media: media}
}

// Evaluate partitions answers by type and processes voice and written answers,
// each set concurrently. A failed answer is dropped, never fatal.
func (e *AnswerEvaluator) Evaluate(ctx domain.Context, answers []domain.Answer, job domain.JobContext) AnswersResult {
	ctx, span := otel.Tracer("usecase.answers").Start(ctx, "AnswerEvaluator.Evaluate")
	defer span.End()

	job = job.Normalize()
	var voice, text []domain.Answer
	for _, a := range answers {
		switch a.Type {
		case domain.AnswerVoice:
			voice = append(voice, a)
		case domain.AnswerText:
			if strings.TrimSpace(a.Value) != "" {
				text = append(text, a)
			}
		}
	}
	span.SetAttributes(attribute.Int("answers.voice", len(voice)), attribute.Int("answers.text", len(text)))

	out := AnswersResult{
		Voice: fanOut(ctx, voice, func(ctx domain.Context, a domain.Answer) (*VoiceAnswerResult, error) {
			return e.voiceAnswer(ctx, a, job)
		}),
		Text: fanOut(ctx, text, func(ctx domain.Context, a domain.Answer) (*TextAnswerResult, error) {
			return e.textAnswer(ctx, a, job)
		}),
	}
	if len(out.Text) > 0 {
		profile, err := e.textProfile(ctx, out.Text, job)
		if err != nil {
			obsctx.LoggerFromContext(ctx).Warn("text answer synthesis failed", slog.String("error", err.Error()))
		}
		out.Profile = profile
	}
	return out
}

// fanOut runs fn over every item concurrently. Failures yield no entry; the
// surviving results keep input order.
func fanOut[T any](ctx domain.Context, items []domain.Answer, fn func(domain.Context, domain.Answer) (*T, error)) []T {
	slots := make([]*T, len(items))
	var g errgroup.Group
	for i, a := range items {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slots[i] = nil
					obsctx.LoggerFromContext(ctx).Error("answer processing panicked",
						slog.String("answer_id", a.ID), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				}
			}()
			res, err := fn(ctx, a)
			if err != nil {
				obsctx.LoggerFromContext(ctx).Warn("answer processing failed",
					slog.String("answer_id", a.ID), slog.String("type", string(a.Type)), slog.String("error", err.Error()))
				return nil
			}
			slots[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]T, 0, len(items))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func questionLabel(a domain.Answer) string {
	if s := strings.TrimSpace(a.QuestionLabel); s != "" {
		return s
	}
	if a.QuestionID != "" {
		return "Question " + a.QuestionID
	}
	return "Untitled question"
}

type refinePromptData struct {
	Question   string
	Transcript string
}

type answerPromptData struct {
	Job      domain.JobContext
	Question string
	Kind     string
	Answer   string
}

func (e *AnswerEvaluator) voiceAnswer(ctx domain.Context, a domain.Answer, job domain.JobContext) (*VoiceAnswerResult, error) {
	ref := a.AudioURL()
	if ref == "" {
		return nil, fmt.Errorf("voice answer %s has no audio", a.ID)
	}
	path, err := e.Media.Download(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(path) }()

	tr, err := e.Transcriber.TranscribeAudio(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tr.Text) == "" {
		return nil, domain.NewEvalError(domain.KindEmptyInput, "Transcription failed: Empty text", nil)
	}

	q := questionLabel(a)
	prompt, err := renderPrompt("voice_refine", refinePromptData{Question: q, Transcript: tr.Text})
	if err != nil {
		return nil, err
	}
	refined, err := e.Gateway.GenerateText(ctx, prompt, domain.GenerateOptions{Temperature: ptr(0.1)})
	if err != nil {
		return nil, err
	}
	refined = strings.TrimSpace(refined)
	if refined == "" {
		refined = tr.Text
	}

	analysis, err := e.scoreAnswer(ctx, job, q, "spoken, transcribed", refined)
	if err != nil {
		return nil, err
	}
	score, _ := score0to100(analysis["quality_score"])
	duration := tr.Duration
	if duration == 0 && a.VoiceData != nil {
		duration = a.VoiceData.Duration
	}
	return &VoiceAnswerResult{
		AnswerID:           a.ID,
		QuestionID:         a.QuestionID,
		Question:           q,
		RawTranscript:      tr.Text,
		RefinedTranscript:  refined,
		Duration:           duration,
		TranscriptFallback: tr.Fallback,
		QualityScore:       score,
		Analysis:           analysis,
	}, nil
}

func (e *AnswerEvaluator) textAnswer(ctx domain.Context, a domain.Answer, job domain.JobContext) (*TextAnswerResult, error) {
	q := questionLabel(a)
	analysis, err := e.scoreAnswer(ctx, job, q, "written", a.Value)
	if err != nil {
		return nil, err
	}
	res := &TextAnswerResult{AnswerID: a.ID, QuestionID: a.QuestionID, Question: q, Answer: a.Value, Analysis: analysis}
	if s, ok := score0to100(analysis["quality_score"]); ok {
		res.QualityScore = &s
	}
	return res, nil
}

func (e *AnswerEvaluator) scoreAnswer(ctx domain.Context, job domain.JobContext, question, kind, answer string) (map[string]any, error) {
	prompt, err := renderPrompt("answer_score", answerPromptData{Job: job, Question: question, Kind: kind, Answer: answer})
	if err != nil {
		return nil, err
	}
	obj, err := e.Gateway.GenerateJSON(ctx, prompt, domain.GenerateOptions{Temperature: ptr(0.2)})
	if err != nil {
		return nil, err
	}
	if domain.IsParseSentinel(obj) {
		return nil, domain.NewEvalError(domain.KindParse, "answer analysis unparseable", nil)
	}
	return obj, nil
}

type aggregatePromptData struct {
	Job          domain.JobContext
	AnalysesJSON string
}

func (e *AnswerEvaluator) textProfile(ctx domain.Context, answers []TextAnswerResult, job domain.JobContext) (*TextProfile, error) {
	brief := make([]map[string]any, 0, len(answers))
	for _, a := range answers {
		brief = append(brief, map[string]any{"question": a.Question, "answer": a.Answer, "analysis": a.Analysis})
	}
	prompt, err := renderPrompt("text_aggregate", aggregatePromptData{Job: job, AnalysesJSON: compactJSON(brief)})
	if err != nil {
		return nil, err
	}
	obj, err := e.Gateway.GenerateJSON(ctx, prompt, domain.GenerateOptions{Temperature: ptr(0.2)})
	if err != nil {
		return nil, err
	}
	if domain.IsParseSentinel(obj) {
		return nil, domain.NewEvalError(domain.KindParse, "answer synthesis unparseable", nil)
	}
	p := &TextProfile{
		InferredFacts: asStringSlice(obj["inferred_facts"]),
		SmartSummary:  asString(obj["smart_summary"]),
		Strengths:     asStringSlice(obj["strengths"]),
		Weaknesses:    asStringSlice(obj["weaknesses"]),
		RedFlags:      asStringSlice(obj["red_flags"]),
	}
	if s, ok := score0to100(obj["alignment_score"]); ok {
		p.AlignmentScore = &s
	}
	return p, nil
}
