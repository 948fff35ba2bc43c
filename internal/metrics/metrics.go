package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: disk cache lookups by result (hit | miss | error).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygate_cache_lookups_total",
			Help: "Total number of image cache lookups by result.",
		},
		[]string{"result"},
	)

	// Counter: disk cache writes by result (ok | error).
	CacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygate_cache_writes_total",
			Help: "Total number of image cache writes by result.",
		},
		[]string{"result"},
	)

	// Counter: upstream provider calls by outcome (ok | error | exhausted).
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygate_upstream_requests_total",
			Help: "Total number of upstream provider calls by outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// Counter: fallback substitutions by the provider that failed.
	ProviderFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygate_provider_fallbacks_total",
			Help: "Total number of times a failed provider was replaced by a fallback.",
		},
		[]string{"provider"},
	)

	// Counter: job state transitions.
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storygate_jobs_total",
			Help: "Total number of job state transitions by status.",
		},
		[]string{"status"},
	)

	// Gauge: jobs waiting for a worker.
	JobQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storygate_job_queue_depth",
			Help: "Number of jobs queued and not yet picked up by a worker.",
		},
	)

	// Histogram: HTTP latency in seconds.
	RequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storygate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"route", "method", "status_code"},
	)
)

var registerOnce sync.Once

// Register registers the collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheLookupsTotal,
			CacheWritesTotal,
			UpstreamRequestsTotal,
			ProviderFallbacksTotal,
			JobsTotal,
			JobQueueDepth,
			RequestDurationSeconds,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request, labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		// pattern keeps job ids and cache keys out of the label set
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		RequestDurationSeconds.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
