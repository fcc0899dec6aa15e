package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_gateway_requests_total",
			Help: "Model gateway calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_gateway_request_duration_seconds",
			Help:    "Model gateway call duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)
	GatewayPromptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "model_gateway_prompt_tokens",
			Help:    "Prompt size in tokens sent to the model gateway",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		},
	)
	GatewayJSONFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "model_gateway_json_parse_failures_total",
			Help: "Responses that could not be parsed as JSON and were replaced by the sentinel object",
		},
	)

	TranscriptionFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transcription_fallbacks_total",
			Help: "Transcriptions answered with the placeholder transcript",
		},
	)

	StageOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_stage_outcomes_total",
			Help: "Pipeline stage results by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently processing",
		},
		[]string{"type"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"type"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs failed",
		},
		[]string{"type"},
	)

	FinalScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evaluation_final_score",
			Help:    "Distribution of final evaluation scores [0,100]",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_decisions_total",
			Help: "Final decisions by recommendation and source",
		},
		[]string{"recommendation", "source"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			GatewayRequestsTotal,
			GatewayRequestDuration,
			GatewayPromptTokens,
			GatewayJSONFallbacksTotal,
			TranscriptionFallbacksTotal,
			StageOutcomesTotal,
			JobsEnqueuedTotal,
			JobsProcessing,
			JobsCompletedTotal,
			JobsFailedTotal,
			FinalScoreHistogram,
			DecisionsTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveGateway records one model gateway call.
func ObserveGateway(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	GatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
	GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveStage records a pipeline stage outcome (ok, error, skipped).
func ObserveStage(stage, outcome string) {
	StageOutcomesTotal.WithLabelValues(stage, outcome).Inc()
}

func EnqueueJob(jobType string) {
	JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

func StartProcessingJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Inc()
}

func CompleteJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsCompletedTotal.WithLabelValues(jobType).Inc()
}

func FailJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsFailedTotal.WithLabelValues(jobType).Inc()
}

// ObserveEvaluation records the final score and decision of a completed run.
func ObserveEvaluation(score int, recommendation, source string) {
	if score >= 0 && score <= 100 {
		FinalScoreHistogram.Observe(float64(score))
	}
	DecisionsTotal.WithLabelValues(recommendation, source).Inc()
}
