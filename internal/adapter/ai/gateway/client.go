// Package gateway is the HTTP client of the remote model gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	aiadapter "github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
)

const jsonInstruction = "\n\nIMPORTANT: Respond with valid JSON only. Do not include explanations, Markdown or code fences."

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 512

// GatewayError is a failed gateway call carrying the upstream HTTP status.
type GatewayError struct {
	Op      string
	Status  int
	Kind    domain.ErrorKind
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("op=gateway.%s status=%d: %s", e.Op, e.Status, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is maps the error kind onto the domain sentinels.
func (e *GatewayError) Is(target error) bool {
	switch e.Kind {
	case domain.KindUnavailable:
		return target == domain.ErrUpstreamUnavailable
	case domain.KindTimeout:
		return target == domain.ErrUpstreamTimeout
	default:
		return target == domain.ErrUpstream
	}
}

// Client implements domain.ModelGateway.
type Client struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
	counter    *tokencount.Counter
	cleaner    *aiadapter.ResponseCleaner
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenCounter enables prompt budgeting against cfg.TokenBudget.
func WithTokenCounter(tc *tokencount.Counter) Option {
	return func(c *Client) { c.counter = tc }
}

// New constructs a gateway client.
func New(cfg config.GatewayConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		cleaner:    aiadapter.NewResponseCleaner(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type generateRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type generateResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

// GenerateText prepends the optional system preamble and returns the model's text.
func (c *Client) GenerateText(ctx domain.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	ctx, span := otel.Tracer("gateway").Start(ctx, "gateway.GenerateText")
	defer span.End()

	prompt = c.budget(ctx, prompt)
	full := prompt
	if s := strings.TrimSpace(opts.System); s != "" {
		full = s + "\n\n" + prompt
	}
	span.SetAttributes(attribute.Int("prompt.chars", len(full)), attribute.String("model", c.cfg.Model))

	var out generateResponse
	start := time.Now()
	status, err := c.post(ctx, "generate", "/generate", generateRequest{
		Model:       c.cfg.Model,
		Prompt:      full,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}, &out)
	if err == nil && !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "upstream reported success=false"
		}
		err = &GatewayError{Op: "generate", Status: status, Kind: domain.KindUpstream, Message: msg}
	}
	observability.ObserveGateway("generate", start, err)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return out.Response, nil
}

// GenerateJSON asks for JSON-only output and parses it. Unparseable output yields
// the sentinel object; a failed generation yields a GatewayError with status 502.
func (c *Client) GenerateJSON(ctx domain.Context, prompt string, opts domain.GenerateOptions) (map[string]any, error) {
	text, err := c.GenerateText(ctx, prompt+jsonInstruction, opts)
	if err != nil {
		kind := domain.KindUpstream
		var inner *GatewayError
		if errors.As(err, &inner) && inner.Kind != domain.KindInternal {
			kind = inner.Kind
		}
		return nil, &GatewayError{Op: "generate_json", Status: http.StatusBadGateway, Kind: kind, Message: "text generation failed", Err: err}
	}
	if obj, ok := c.cleaner.ParseObject(text); ok {
		return obj, nil
	}
	observability.GatewayJSONFallbacksTotal.Inc()
	obsctx.LoggerFromContext(ctx).Warn("model output is not JSON", slog.Int("chars", len(text)))
	return domain.NewParseSentinel(text), nil
}

type analyzeCVRequest struct {
	CVText string `json:"cv_text"`
}

type analyzeCVResponse struct {
	Success  bool            `json:"success"`
	Analysis json.RawMessage `json:"analysis"`
	Error    string          `json:"error"`
}

// AnalyzeCV calls the gateway's CV analysis endpoint and returns the structured analysis.
func (c *Client) AnalyzeCV(ctx domain.Context, cvText string) (map[string]any, error) {
	ctx, span := otel.Tracer("gateway").Start(ctx, "gateway.AnalyzeCV")
	defer span.End()

	var out analyzeCVResponse
	start := time.Now()
	status, err := c.post(ctx, "analyze_cv", "/analyze-cv", analyzeCVRequest{CVText: c.budget(ctx, cvText)}, &out)
	if err == nil && !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "upstream reported success=false"
		}
		err = &GatewayError{Op: "analyze_cv", Status: status, Kind: domain.KindUpstream, Message: msg}
	}
	var analysis map[string]any
	if err == nil {
		analysis, err = c.decodeAnalysis(out.Analysis)
	}
	observability.ObserveGateway("analyze_cv", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return analysis, nil
}

// decodeAnalysis accepts the analysis as an object or as a JSON-bearing string.
func (c *Client) decodeAnalysis(raw json.RawMessage) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		return obj, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if obj, ok := c.cleaner.ParseObject(s); ok {
			return obj, nil
		}
	}
	return nil, domain.NewEvalError(domain.KindParse, "unparseable cv analysis", nil)
}

func (c *Client) budget(ctx domain.Context, prompt string) string {
	if c.counter == nil {
		return prompt
	}
	if n, err := c.counter.CountTokens(prompt, c.cfg.Model); err == nil {
		observability.GatewayPromptTokens.Observe(float64(n))
	}
	if c.cfg.TokenBudget <= 0 {
		return prompt
	}
	out, cut, err := c.counter.Truncate(prompt, c.cfg.Model, c.cfg.TokenBudget)
	if err != nil {
		return prompt
	}
	if cut {
		obsctx.LoggerFromContext(ctx).Warn("prompt truncated to token budget", slog.Int("budget", c.cfg.TokenBudget))
	}
	return out
}

// post sends a JSON request and decodes a 2xx JSON response into out.
func (c *Client) post(ctx domain.Context, op, path string, body, out any) (int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, &GatewayError{Op: op, Kind: domain.KindInternal, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, &GatewayError{Op: op, Kind: domain.KindInternal, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
	if rid := obsctx.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-Id", rid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// A status reply means the gateway was reached, so it is never connection-class.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &GatewayError{Op: op, Status: resp.StatusCode, Kind: domain.KindUpstream, Message: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if k := domain.ClassifyTransportError(err); k != "" {
			return resp.StatusCode, &GatewayError{Op: op, Status: resp.StatusCode, Kind: k, Message: "read response", Err: err}
		}
		return resp.StatusCode, &GatewayError{Op: op, Status: resp.StatusCode, Kind: domain.KindUpstream, Message: "decode response", Err: err}
	}
	return resp.StatusCode, nil
}

func transportError(op string, err error) *GatewayError {
	switch domain.ClassifyTransportError(err) {
	case domain.KindTimeout:
		return &GatewayError{Op: op, Status: http.StatusGatewayTimeout, Kind: domain.KindTimeout, Message: "gateway timed out", Err: err}
	case domain.KindUnavailable:
		return &GatewayError{Op: op, Status: http.StatusServiceUnavailable, Kind: domain.KindUnavailable, Message: "gateway unreachable", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &GatewayError{Op: op, Kind: domain.KindInternal, Message: "request canceled", Err: err}
	}
	return &GatewayError{Op: op, Status: http.StatusInternalServerError, Kind: domain.KindUpstream, Message: "request failed", Err: err}
}
