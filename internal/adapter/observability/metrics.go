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
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_estimated_total",
			Help: "Estimated prompt and completion tokens by backend",
		},
		[]string{"backend", "kind"},
	)
	AIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_retries_total",
			Help: "Total number of gateway retry waits",
		},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "response_cache_lookups_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"},
	)

	DiagramRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagram_renders_total",
			Help: "Diagram render attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	DiagramRenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diagram_render_duration_seconds",
			Help:    "Diagram render duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	RetentionDeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_deletions_total",
			Help: "Generated files removed by reason",
		},
		[]string{"reason"},
	)
	RetentionPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "retention_pending_deletions",
			Help: "Number of delayed deletions waiting in the queue",
		},
	)
)

var initOnce sync.Once

// InitMetrics registers every collector with the default registry. Safe to
// call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AITokensTotal,
			AIRetriesTotal,
			CacheLookupsTotal,
			DiagramRendersTotal,
			DiagramRenderDuration,
			RetentionDeletionsTotal,
			RetentionPending,
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

// ObserveAIRequest records one provider call.
func ObserveAIRequest(backend string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	AIRequestsTotal.WithLabelValues(backend, outcome).Inc()
	AIRequestDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// AddTokenUsage records an estimated token count for a provider call.
func AddTokenUsage(backend string, prompt, completion int) {
	if prompt > 0 {
		AITokensTotal.WithLabelValues(backend, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		AITokensTotal.WithLabelValues(backend, "completion").Add(float64(completion))
	}
}

// ObserveCacheLookup records a response cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// ObserveDiagramRender records one diagram render attempt.
func ObserveDiagramRender(kind string, d time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	DiagramRendersTotal.WithLabelValues(kind, outcome).Inc()
	DiagramRenderDuration.WithLabelValues(kind).Observe(d.Seconds())
}
