package domain_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

func TestNormalizeAnswerType(t *testing.T) {
	cases := map[string]domain.AnswerType{
		"long_text":       domain.AnswerText,
		"textarea":        domain.AnswerText,
		"":                domain.AnswerText,
		"Audio":           domain.AnswerVoice,
		"voice_recording": domain.AnswerVoice,
		"upload":          domain.AnswerFile,
		"link":            domain.AnswerURL,
		" url ":           domain.AnswerURL,
	}
	for raw, want := range cases {
		assert.Equal(t, want, domain.NormalizeAnswerType(raw), raw)
	}
}

func TestAnswer_AudioURL_PrefersVoiceData(t *testing.T) {
	a := domain.Answer{Value: "flat.webm", VoiceData: &domain.VoiceData{AudioURL: "nested.webm"}}
	assert.Equal(t, "nested.webm", a.AudioURL())
	a.VoiceData.AudioURL = "  "
	assert.Equal(t, "flat.webm", a.AudioURL())
	assert.Equal(t, "x", domain.Answer{Value: " x "}.AudioURL())
}

func TestJobContext_Normalize(t *testing.T) {
	j := domain.JobContext{}.Normalize()
	assert.NotNil(t, j.RequiredSkills)
	assert.NotNil(t, j.KeyTopics)
	assert.NotNil(t, j.Weights)
}

func TestEvalError_IsAndOutcome(t *testing.T) {
	e := domain.NewEvalError(domain.KindValidation, "Invalid assignment data", nil, "type is required")
	assert.True(t, errors.Is(e, domain.ErrInvalidArgument))
	assert.False(t, errors.Is(e, domain.ErrUpstreamUnavailable))
	assert.Equal(t, "Invalid assignment data", e.Error())
	out := e.Outcome()
	assert.Equal(t, false, out["success"])
	assert.Equal(t, []string{"type is required"}, out["details"])

	wrapped := fmt.Errorf("stage: %w", domain.NewEvalError(domain.KindUnavailable, "AI evaluation service unavailable", syscall.ECONNREFUSED))
	assert.True(t, errors.Is(wrapped, domain.ErrUpstreamUnavailable))
	assert.True(t, errors.Is(wrapped, syscall.ECONNREFUSED))
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(wrapped))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransportError(t *testing.T) {
	refused := &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}}
	assert.Equal(t, domain.KindUnavailable, domain.ClassifyTransportError(refused))

	dns := &url.Error{Op: "Get", URL: "http://nohost", Err: &net.DNSError{Err: "no such host", Name: "nohost"}}
	assert.Equal(t, domain.KindUnavailable, domain.ClassifyTransportError(dns))

	hangup := &url.Error{Op: "Post", URL: "http://x", Err: io.EOF}
	assert.Equal(t, domain.KindUnavailable, domain.ClassifyTransportError(hangup))

	assert.Equal(t, domain.KindTimeout, domain.ClassifyTransportError(&url.Error{Op: "Get", URL: "u", Err: timeoutErr{}}))
	assert.Equal(t, domain.KindTimeout, domain.ClassifyTransportError(fmt.Errorf("call: %w", context.DeadlineExceeded)))

	assert.Equal(t, domain.ErrorKind(""), domain.ClassifyTransportError(errors.New("connection refused")), "messages are not classified")
	assert.Equal(t, domain.ErrorKind(""), domain.ClassifyTransportError(nil))
	assert.Equal(t, domain.KindUnavailable, domain.ClassifyTransportError(fmt.Errorf("gw: %w", domain.ErrUpstreamUnavailable)))
	assert.True(t, domain.IsConnectionError(refused))
	assert.False(t, domain.IsConnectionError(errors.New("bad json")))
	assert.Equal(t, domain.KindInternal, domain.KindOf(errors.New("boom")))
}

func TestParseSentinel(t *testing.T) {
	obj := domain.NewParseSentinel("not json")
	assert.True(t, domain.IsParseSentinel(obj))
	assert.Equal(t, "not json", obj["raw_output"])
	assert.True(t, domain.IsParseSentinel(nil))
	assert.False(t, domain.IsParseSentinel(map[string]any{"overall_score": 1.0}))
	assert.False(t, domain.IsParseSentinel(map[string]any{"error": "other"}))
}
