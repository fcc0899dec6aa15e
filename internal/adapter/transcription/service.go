// Package transcription talks to the remote speech-to-text service and extracts
// audio tracks from video with ffmpeg.
package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
)

// Unavailable policies.
const (
	PolicyFallback = "fallback"
	PolicyFail     = "fail"
)

const defaultFFmpeg = "ffmpeg"

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Service implements domain.Transcriber.
type Service struct {
	cfg        config.TranscriptionConfig
	httpClient *http.Client
	run        CommandRunner
}

// Option customizes a Service.
type Option func(*Service)

// WithHTTPClient replaces the default traced HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) { s.httpClient = hc }
}

// WithCommandRunner replaces exec for ffmpeg invocations.
func WithCommandRunner(r CommandRunner) Option {
	return func(s *Service) { s.run = r }
}

// New constructs a transcription service.
func New(cfg config.TranscriptionConfig, opts ...Option) *Service {
	if cfg.FFmpegBinary == "" {
		cfg.FFmpegBinary = defaultFFmpeg
	}
	if cfg.OnUnavailable == "" {
		cfg.OnUnavailable = PolicyFallback
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	s := &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type transcribeResponse struct {
	Status        string `json:"status"`
	Error         string `json:"error"`
	Transcription struct {
		Text     string           `json:"text"`
		Segments []domain.Segment `json:"segments"`
		Metadata struct {
			Duration float64 `json:"duration"`
		} `json:"metadata"`
	} `json:"transcription"`
}

// TranscribeAudio uploads the audio file and returns its transcript. When the
// service cannot be reached the configured policy decides between the canned
// fallback transcript and a KindUnavailable error.
func (s *Service) TranscribeAudio(ctx domain.Context, path string) (domain.Transcript, error) {
	ctx, span := otel.Tracer("transcription").Start(ctx, "transcription.TranscribeAudio")
	defer span.End()
	span.SetAttributes(attribute.String("file", filepath.Base(path)))

	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return domain.Transcript{}, domain.NewEvalError(domain.KindInternal, "read audio file", err)
	}
	defer func() { _ = f.Close() }()

	t, err := s.transcribe(ctx, filepath.Base(path), f)
	if err == nil {
		return t, nil
	}
	span.RecordError(err)
	kind := domain.ClassifyTransportError(err)
	if kind == "" {
		return domain.Transcript{}, domain.NewEvalError(domain.KindUpstream, "transcription failed", err)
	}
	if s.cfg.OnUnavailable == PolicyFail {
		return domain.Transcript{}, domain.NewEvalError(domain.KindUnavailable, "transcription service unavailable", err)
	}
	obsctx.LoggerFromContext(ctx).Warn("transcription service unreachable, using fallback transcript",
		slog.String("error", err.Error()))
	observability.TranscriptionFallbacksTotal.Inc()
	return FallbackTranscript(), nil
}

// transcribe streams src as a multipart form file without buffering it.
func (s *Service) transcribe(ctx context.Context, name string, src io.Reader) (domain.Transcript, error) {
	pr, pw := io.Pipe()
	defer func() { _ = pr.Close() }()
	mw := multipart.NewWriter(pw)
	go func() {
		fw, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(fw, src)
		}
		if err == nil {
			err = mw.Close()
		}
		if err != nil {
			err = fmt.Errorf("op=transcription.form: %w", err)
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/transcribe", pr)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("op=transcription.request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("op=transcription.do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Transcript{}, fmt.Errorf("op=transcription.do: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Transcript{}, fmt.Errorf("op=transcription.decode: %w", err)
	}
	if out.Status != "" && out.Status != "success" {
		return domain.Transcript{}, fmt.Errorf("op=transcription.do: status %q: %s", out.Status, out.Error)
	}
	segs := out.Transcription.Segments
	if segs == nil {
		segs = []domain.Segment{}
	}
	return domain.Transcript{
		Text:     strings.TrimSpace(out.Transcription.Text),
		Segments: segs,
		Duration: out.Transcription.Metadata.Duration,
	}, nil
}

// FallbackTranscript is the placeholder returned under the fallback policy.
func FallbackTranscript() domain.Transcript {
	return domain.Transcript{
		Text: "This is a placeholder transcript. The transcription service was unavailable, so the recording could not be processed.",
		Segments: []domain.Segment{
			{Start: 0, End: 5, Text: "This is a placeholder transcript."},
			{Start: 5, End: 10, Text: "The transcription service was unavailable, so the recording could not be processed."},
		},
		Duration: 10,
		Fallback: true,
	}
}

// ExtractAudioFromVideo writes a 16 kHz mono PCM WAV next to the video and
// returns its path. Failures are returned, never downgraded.
func (s *Service) ExtractAudioFromVideo(ctx domain.Context, videoPath string) (string, error) {
	ctx, span := otel.Tracer("transcription").Start(ctx, "transcription.ExtractAudioFromVideo")
	defer span.End()

	dest := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".wav"
	if dest == videoPath {
		dest = videoPath + ".wav"
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if output, err := s.run(ctx, s.cfg.FFmpegBinary, args...); err != nil {
		span.RecordError(err)
		_ = os.Remove(dest)
		return "", fmt.Errorf("op=transcription.extract_audio: ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return dest, nil
}
