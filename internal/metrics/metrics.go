// Package metrics holds the Prometheus instruments for a Synapse instance.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture results.
const (
	ResultStored    = "stored"
	ResultFailed    = "failed"
	ResultDuplicate = "duplicate"
)

// Metrics holds all Prometheus metrics for the application, registered on
// a per-instance registry.
type Metrics struct {
	Registry *prometheus.Registry

	CapturesTotal      *prometheus.CounterVec
	CaptureDuration    *prometheus.HistogramVec
	QueueDepth         prometheus.Gauge
	ItemsStoredTotal   *prometheus.CounterVec
	DegradedTotal      prometheus.Counter
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
}

// New creates and registers every instrument on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CapturesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_captures_total",
			Help: "Finished capture pipelines by source and result.",
		}, []string{"source", "result"}),
		CaptureDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synapse_capture_duration_seconds",
			Help:    "Duration of capture pipelines from dequeue to completion.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "synapse_capture_queue_depth",
			Help: "Capture tasks waiting for a worker.",
		}),
		ItemsStoredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_items_stored_total",
			Help: "Items written to the store by type.",
		}, []string{"type"}),
		DegradedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "synapse_extraction_degraded_total",
			Help: "Extractions that produced no usable text.",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "synapse_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synapse_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveCapture records one finished pipeline.
func (m *Metrics) ObserveCapture(source, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CapturesTotal.WithLabelValues(source, result).Inc()
	m.CaptureDuration.WithLabelValues(source).Observe(d.Seconds())
}

// IncStored counts a stored item of the given type.
func (m *Metrics) IncStored(itemType string) {
	if m == nil {
		return
	}
	m.ItemsStoredTotal.WithLabelValues(itemType).Inc()
}

// IncDegraded counts a degraded extraction.
func (m *Metrics) IncDegraded() {
	if m == nil {
		return
	}
	m.DegradedTotal.Inc()
}

// SetQueueDepth reports the number of queued tasks.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency labelled by the matched
// chi route pattern, which keeps label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
