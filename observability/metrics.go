// Package observability records what the import service does: a SQLite
// audit trail of imports and commits, and Prometheus collectors scraped at
// /metrics.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ebookimport"

// Metrics holds the service collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	imports        *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	chapters       prometheus.Histogram
	truncated      prometheus.Counter
	requests       *prometheus.CounterVec
}

// NewMetrics registers the collectors, plus Go runtime and process
// collectors, on a new registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Imports by format, strategy and outcome (ok, degraded, error).",
		}, []string{"format", "strategy", "outcome"}),
		importDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of an import by format.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"format"}),
		chapters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chapters_per_import",
			Help:      "Chapters returned per successful import.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 40, 50},
		}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chapters_truncated_total",
			Help:      "Chapters cut at the content length bound.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.imports, m.importDuration, m.chapters, m.truncated, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ImportResult summarises one import for ObserveImport.
type ImportResult struct {
	Format    string
	Strategy  string
	Chapters  int
	Truncated int
	Degraded  bool
	Err       error
	Duration  time.Duration
}

// ObserveImport records an import outcome.
func (m *Metrics) ObserveImport(r ImportResult) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case r.Err != nil:
		outcome = "error"
	case r.Degraded:
		outcome = "degraded"
	}
	format := r.Format
	if format == "" {
		format = "unknown"
	}
	m.imports.WithLabelValues(format, r.Strategy, outcome).Inc()
	m.importDuration.WithLabelValues(format).Observe(r.Duration.Seconds())
	if r.Err == nil {
		m.chapters.Observe(float64(r.Chapters))
		m.truncated.Add(float64(r.Truncated))
	}
}

// Middleware counts requests by chi route pattern, so path parameters do
// not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promLogger implements promhttp.Logger on slog.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	slog.Error("metrics: " + fmt.Sprint(v...))
}
