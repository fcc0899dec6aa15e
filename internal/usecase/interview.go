package usecase

import (
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/pkg/textx"
)

// InterviewInput is exactly one of in-memory media, a media file path or a transcript.
type InterviewInput struct {
	Bytes      []byte
	Path       string
	Transcript string
}

// InterviewResult is the analyzer output folded into the final analysis.
type InterviewResult struct {
	Success            bool             `json:"success"`
	Transcript         string           `json:"transcript"`
	Segments           []domain.Segment `json:"segments"`
	Duration           float64          `json:"duration"`
	TranscriptFallback bool             `json:"transcript_fallback,omitempty"`
	// Degraded is set when the model output could not be parsed.
	Degraded bool           `json:"degraded,omitempty"`
	Analysis map[string]any `json:"analysis"`
}

// InterviewAnalyzer transcribes and analyzes a long-form interview.
type InterviewAnalyzer struct {
	Gateway     domain.ModelGateway
	Transcriber domain.Transcriber
}

// NewInterviewAnalyzer constructs an InterviewAnalyzer.
func NewInterviewAnalyzer(gw domain.ModelGateway, tr domain.Transcriber) *InterviewAnalyzer {
	return &InterviewAnalyzer{Gateway: gw, Transcriber: tr}
}

type interviewPromptData struct {
	Job        domain.JobContext
	Transcript string
}

// Analyze runs extraction, transcription and model analysis. Every temp file it
// creates is removed before returning.
func (a *InterviewAnalyzer) Analyze(ctx domain.Context, in InterviewInput, inputType string, job domain.JobContext) (InterviewResult, error) {
	ctx, span := otel.Tracer("usecase.interview").Start(ctx, "InterviewAnalyzer.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("input_type", inputType))

	var temps []string
	defer func() {
		for _, p := range temps {
			_ = os.Remove(p)
		}
	}()

	res := InterviewResult{Segments: []domain.Segment{}}
	switch inputType {
	case domain.MediaTranscript:
		res.Transcript = in.Transcript
		if res.Transcript == "" {
			res.Transcript = string(in.Bytes)
		}
	case domain.MediaVideo, domain.MediaAudio:
		path := in.Path
		if len(in.Bytes) > 0 {
			p, err := writeTemp("interview-*"+mimetype.Detect(in.Bytes).Extension(), in.Bytes)
			if err != nil {
				return InterviewResult{}, domain.NewEvalError(domain.KindInternal, "write interview media", err)
			}
			temps = append(temps, p)
			path = p
		}
		if path == "" {
			return InterviewResult{}, domain.NewEvalError(domain.KindValidation, "Invalid interview input", nil, "no media bytes or path")
		}
		if inputType == domain.MediaVideo {
			audio, err := a.Transcriber.ExtractAudioFromVideo(ctx, path)
			if err != nil {
				return InterviewResult{}, domain.NewEvalError(domain.KindInternal, "Audio extraction failed", err)
			}
			temps = append(temps, audio)
			path = audio
		}
		tr, err := a.Transcriber.TranscribeAudio(ctx, path)
		if err != nil {
			if domain.KindOf(err) == domain.KindUnavailable {
				return InterviewResult{}, err
			}
			return InterviewResult{}, domain.NewEvalError(domain.KindOf(err), "Transcription failed", err)
		}
		res.Transcript = tr.Text
		res.Segments = tr.Segments
		res.Duration = tr.Duration
		res.TranscriptFallback = tr.Fallback
	default:
		return InterviewResult{}, domain.NewEvalError(domain.KindValidation, "Invalid interview input", nil, "input type must be video, audio or transcript")
	}

	res.Transcript = strings.TrimSpace(res.Transcript)
	if res.Transcript == "" {
		return InterviewResult{}, domain.NewEvalError(domain.KindEmptyInput, "Transcription failed: Empty text", nil)
	}

	prompt, err := renderPrompt("interview", interviewPromptData{Job: job.Normalize(), Transcript: res.Transcript})
	if err != nil {
		return InterviewResult{}, err
	}
	analysis, err := a.Gateway.GenerateJSON(ctx, prompt, domain.GenerateOptions{Temperature: ptr(0.3)})
	if err != nil {
		span.RecordError(err)
		return InterviewResult{}, domain.NewEvalError(domain.KindOf(err), "Interview analysis failed", err)
	}
	if domain.IsParseSentinel(analysis) {
		obsctx.LoggerFromContext(ctx).Warn("interview analysis unparseable, keeping local metrics only")
		res.Degraded = true
		if analysis == nil {
			analysis = map[string]any{}
		}
	}

	metrics := asMap(analysis["metrics"])
	if metrics == nil {
		metrics = map[string]any{}
	}
	for k, v := range LocalSpeechMetrics(res.Transcript, res.Segments) {
		metrics[k] = v
	}
	analysis["metrics"] = metrics
	res.Analysis = analysis
	res.Success = true

	obsctx.LoggerFromContext(ctx).Debug("interview analyzed",
		slog.Int("segments", len(res.Segments)), slog.Bool("transcript_fallback", res.TranscriptFallback))
	return res, nil
}

// LocalSpeechMetrics computes objective metrics from the transcript itself.
// Words per minute uses the end of the last segment as the speaking time.
func LocalSpeechMetrics(transcript string, segments []domain.Segment) map[string]any {
	words := textx.Words(transcript)
	wpm := 0.0
	avg := 0.0
	if n := len(segments); n > 0 {
		if end := segments[n-1].End; end > 0 {
			wpm = math.Round(float64(words) / end * 60)
		}
		total := 0.0
		for _, s := range segments {
			total += s.End - s.Start
		}
		avg = round2(total / float64(n))
	}
	return map[string]any{
		"word_count":           words,
		"words_per_minute":     wpm,
		"segment_count":        len(segments),
		"avg_segment_duration": avg,
	}
}

// InterviewScore prefers compatibility_score, then overall_score, else 0.
func InterviewScore(analysis map[string]any) float64 {
	if s, ok := score0to100(analysis["compatibility_score"]); ok {
		return s
	}
	if s, ok := score0to100(analysis["overall_score"]); ok {
		return s
	}
	return 0
}

func writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
