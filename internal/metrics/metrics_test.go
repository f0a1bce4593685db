package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCapture(t *testing.T) {
	m := New()
	m.ObserveCapture("url", ResultStored, 200*time.Millisecond)
	m.ObserveCapture("url", ResultFailed, time.Second)
	m.ObserveCapture("url", ResultFailed, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CapturesTotal.WithLabelValues("url", ResultStored)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CapturesTotal.WithLabelValues("url", ResultFailed)))
}

func TestCountersAndGauge(t *testing.T) {
	m := New()
	m.IncStored("ARTICLE")
	m.IncDegraded()
	m.SetQueueDepth(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsStoredTotal.WithLabelValues("ARTICLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DegradedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCapture("url", ResultStored, time.Second)
		m.IncStored("NOTE")
		m.IncDegraded()
		m.SetQueueDepth(1)
	})
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.IncDegraded()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DegradedTotal))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/captures/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/captures/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/captures/{id}", "404")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.IncStored("VIDEO")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `synapse_items_stored_total{type="VIDEO"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
