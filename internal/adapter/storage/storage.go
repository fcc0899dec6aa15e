// Package storage resolves stored media references and downloads them.
package storage

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

// Store implements domain.MediaStore over HTTP.
type Store struct {
	cfg        config.StorageConfig
	httpClient *http.Client
}

// New constructs a Store. The client timeout is cfg.Timeout.
func New(cfg config.StorageConfig) *Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Store{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Resolve turns a stored reference into a fetchable URL. Absolute URLs pass through.
func (s *Store) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty media reference", domain.ErrInvalidArgument)
	}
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return ref, nil
	}
	if s.cfg.PublicBaseURL == "" {
		return "", fmt.Errorf("%w: relative reference %q without storage base url", domain.ErrInvalidArgument, ref)
	}
	return s.cfg.PublicBaseURL + "/" + strings.TrimLeft(ref, "/"), nil
}

// Fetch downloads the referenced blob into memory.
func (s *Store) Fetch(ctx domain.Context, ref string) ([]byte, error) {
	ctx, span := otel.Tracer("storage").Start(ctx, "storage.Fetch")
	defer span.End()

	u, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("url.host", hostOf(u)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("op=storage.fetch: %w", err)
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("op=storage.fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("op=storage.fetch: %w: %s", domain.ErrNotFound, ref)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("op=storage.fetch: status %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if s.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, s.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("op=storage.fetch: %w", err)
	}
	if s.cfg.MaxBytes > 0 && int64(len(data)) > s.cfg.MaxBytes {
		return nil, fmt.Errorf("op=storage.fetch: %w: blob exceeds %d bytes", domain.ErrInvalidArgument, s.cfg.MaxBytes)
	}
	return data, nil
}

// Download fetches the blob into a temp file named with the sniffed extension.
// The caller removes the file.
func (s *Store) Download(ctx domain.Context, ref string) (string, error) {
	data, err := s.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "media-*"+mimetype.Detect(data).Extension())
	if err != nil {
		return "", fmt.Errorf("op=storage.download: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("op=storage.download: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("op=storage.download: %w", err)
	}
	return f.Name(), nil
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Host
	}
	return ""
}
