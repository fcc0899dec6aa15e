package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerFromContext_DefaultsAndStored(t *testing.T) {
	assert.Equal(t, slog.Default(), LoggerFromContext(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Equal(t, slog.Default(), LoggerFromContext(nil))

	lg := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), lg)
	assert.Same(t, lg, LoggerFromContext(ctx))
	assert.Equal(t, ctx, ContextWithLogger(ctx, nil))
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := ContextWithLogger(context.Background(), base)
	ctx, lg := WithAttrs(ctx, slog.String("application_id", "app-1"))
	lg.Info("x")
	assert.Contains(t, buf.String(), "application_id=app-1")
	assert.Same(t, lg, LoggerFromContext(ctx))
}

func TestRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "01HREQ")
	assert.Equal(t, "01HREQ", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
	assert.Equal(t, context.Background(), ContextWithRequestID(context.Background(), ""))
}
