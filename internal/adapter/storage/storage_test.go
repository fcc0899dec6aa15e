package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

func TestResolve(t *testing.T) {
	s := New(config.StorageConfig{PublicBaseURL: "https://cdn.example.com/public"})

	u, err := s.Resolve("https://other.example.com/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/a.mp4", u)

	u, err = s.Resolve("/interviews/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/public/interviews/a.mp4", u)

	_, err = s.Resolve("  ")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = New(config.StorageConfig{}).Resolve("relative/path")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestFetchAndDownload(t *testing.T) {
	pdf := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/resumes/cv.pdf":
			_, _ = w.Write(pdf)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := New(config.StorageConfig{PublicBaseURL: srv.URL, APIKey: "secret"})
	data, err := s.Fetch(context.Background(), "resumes/cv.pdf")
	require.NoError(t, err)
	assert.Equal(t, pdf, data)

	path, err := s.Download(context.Background(), "resumes/cv.pdf")
	require.NoError(t, err)
	defer os.Remove(path)
	assert.True(t, strings.HasSuffix(path, ".pdf"))

	_, err = s.Fetch(context.Background(), "missing.pdf")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := New(config.StorageConfig{MaxBytes: 16}).Fetch(context.Background(), srv.URL+"/big")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}
