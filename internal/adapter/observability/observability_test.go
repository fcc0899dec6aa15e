package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/config"
)

func TestNewLogger_JSONWithServiceFields(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"}, &buf)
	lg.Debug("hello")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "svc", rec["service"])
	assert.Equal(t, "dev", rec["env"])
	assert.Equal(t, "DEBUG", rec["level"])

	buf.Reset()
	lg = newLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc"}, &buf)
	lg.Debug("hidden")
	assert.Zero(t, buf.Len())
}

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.Config{}, "test")
	require.NoError(t, err)
	assert.Nil(t, shutdown)
}

func TestInitMetrics_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		InitMetrics()
		InitMetrics()
	})
}

func TestHTTPMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/things/{id}", http.MethodGet, http.StatusText(http.StatusTeapot)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/things/{id}", http.MethodGet, http.StatusText(http.StatusTeapot)))
	assert.Equal(t, before+1, after)
}

func TestObserveHelpers(t *testing.T) {
	before := testutil.ToFloat64(GatewayRequestsTotal.WithLabelValues("generate", "error"))
	ObserveGateway("generate", time.Now(), errors.New("x"))
	assert.Equal(t, before+1, testutil.ToFloat64(GatewayRequestsTotal.WithLabelValues("generate", "error")))

	StartProcessingJob("evaluate")
	CompleteJob("evaluate")
	assert.Equal(t, 0.0, testutil.ToFloat64(JobsProcessing.WithLabelValues("evaluate")))

	d := testutil.ToFloat64(DecisionsTotal.WithLabelValues("Reject", "fallback"))
	ObserveEvaluation(12, "Reject", "fallback")
	assert.Equal(t, d+1, testutil.ToFloat64(DecisionsTotal.WithLabelValues("Reject", "fallback")))
}
