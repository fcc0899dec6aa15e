package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

func init() { observability.InitMetrics() }

func writeAudio(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "answer.wav")
	require.NoError(t, os.WriteFile(p, []byte("RIFF....WAVE"), 0o600))
	return p
}

func closedURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func TestTranscribeAudio_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		_ = f.Close()
		assert.Equal(t, "answer.wav", hdr.Filename)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"transcription": map[string]any{
				"text":     " hello world ",
				"segments": []map[string]any{{"start": 0, "end": 1.5, "text": "hello world"}},
				"metadata": map[string]any{"duration": 1.5},
			},
		})
	}))
	defer srv.Close()

	s := New(config.TranscriptionConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	tr, err := s.TranscribeAudio(context.Background(), writeAudio(t))
	require.NoError(t, err)
	assert.Equal(t, "hello world", tr.Text)
	require.Len(t, tr.Segments, 1)
	assert.Equal(t, 1.5, tr.Segments[0].End)
	assert.Equal(t, 1.5, tr.Duration)
	assert.False(t, tr.Fallback)
}

func TestTranscribeAudio_StreamsFileBody(t *testing.T) {
	audio := bytes.Repeat([]byte("0123456789abcdef"), 1<<16)
	p := filepath.Join(t.TempDir(), "interview.wav")
	require.NoError(t, os.WriteFile(p, audio, 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.EqualValues(t, -1, r.ContentLength, "body is sent chunked, not pre-buffered")
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		got, err := io.ReadAll(f)
		_ = f.Close()
		require.NoError(t, err)
		assert.True(t, bytes.Equal(audio, got))
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "transcription": map[string]any{"text": "ok"}})
	}))
	defer srv.Close()

	tr, err := New(config.TranscriptionConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}).TranscribeAudio(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "ok", tr.Text)
}

func TestTranscribeAudio_MissingFile(t *testing.T) {
	_, err := New(config.TranscriptionConfig{BaseURL: closedURL()}).TranscribeAudio(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestTranscribeAudio_FallbackPolicy(t *testing.T) {
	s := New(config.TranscriptionConfig{BaseURL: closedURL(), OnUnavailable: PolicyFallback, Timeout: time.Second})
	tr, err := s.TranscribeAudio(context.Background(), writeAudio(t))
	require.NoError(t, err)
	assert.True(t, tr.Fallback)
	assert.Len(t, tr.Segments, 2)
	assert.Equal(t, 10.0, tr.Duration)
}

func TestTranscribeAudio_FailPolicy(t *testing.T) {
	s := New(config.TranscriptionConfig{BaseURL: closedURL(), OnUnavailable: PolicyFail, Timeout: time.Second})
	_, err := s.TranscribeAudio(context.Background(), writeAudio(t))
	require.Error(t, err)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
}

func TestTranscribeAudio_UpstreamErrorIsNotDowngraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(config.TranscriptionConfig{BaseURL: srv.URL})
	_, err := s.TranscribeAudio(context.Background(), writeAudio(t))
	require.Error(t, err)
	assert.Equal(t, domain.KindUpstream, domain.KindOf(err))
	assert.Contains(t, err.Error(), "model crashed")
}

func TestExtractAudioFromVideo_Args(t *testing.T) {
	var gotName string
	var gotArgs []string
	s := New(config.TranscriptionConfig{FFmpegBinary: "/usr/bin/ffmpeg"}, WithCommandRunner(
		func(_ context.Context, name string, args ...string) ([]byte, error) {
			gotName, gotArgs = name, args
			return nil, nil
		}))

	out, err := s.ExtractAudioFromVideo(context.Background(), "/tmp/interview.mp4")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/interview.wav", out)
	assert.Equal(t, "/usr/bin/ffmpeg", gotName)
	assert.Contains(t, gotArgs, "16000")
	assert.Contains(t, gotArgs, "pcm_s16le")
	assert.Equal(t, "/tmp/interview.wav", gotArgs[len(gotArgs)-1])
}

func TestExtractAudioFromVideo_FailureIsHard(t *testing.T) {
	s := New(config.TranscriptionConfig{}, WithCommandRunner(
		func(context.Context, string, ...string) ([]byte, error) {
			return []byte("Invalid data found\n"), errors.New("exit status 1")
		}))
	_, err := s.ExtractAudioFromVideo(context.Background(), filepath.Join(t.TempDir(), "x.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
}
