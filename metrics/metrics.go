// Package metrics exposes Prometheus instrumentation for layout, culling,
// rendering and the HTTP surface.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the application
type Registry struct {
	// Layout Metrics
	LayoutRunsTotal        *prometheus.CounterVec
	LayoutDuration         *prometheus.HistogramVec
	LayoutTicks            prometheus.Histogram
	WorkerSubmissionsTotal *prometheus.CounterVec
	WorkerFallbacksTotal   prometheus.Counter

	// View Metrics
	VisibleNodes prometheus.Gauge
	TotalNodes   prometheus.Gauge
	VisibleEdges prometheus.Gauge
	TotalEdges   prometheus.Gauge
	ZoomLevel    prometheus.Gauge
	LargeDataset prometheus.Gauge
	CullDuration *prometheus.HistogramVec

	// Render Metrics
	RenderDuration    *prometheus.HistogramVec
	RenderErrorsTotal *prometheus.CounterVec
	BackendMode       *prometheus.GaugeVec

	// HTTP Metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActiveSessions      prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.Mutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.initLayoutMetrics()
	r.initViewMetrics()
	r.initRenderMetrics()
	r.initHTTPMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveSubmission implements worker.Observer.
func (r *Registry) ObserveSubmission(worker, outcome string) {
	r.WorkerSubmissionsTotal.WithLabelValues(worker, outcome).Inc()
}

// RecordLayout records a finished layout run. mode is "sync" or "offload".
func (r *Registry) RecordLayout(mode string, ticks int, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.LayoutRunsTotal.WithLabelValues(mode, status).Inc()
	r.LayoutDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if err == nil {
		r.LayoutTicks.Observe(float64(ticks))
	}
}

// RecordFallback counts a switch from offloaded to synchronous layout.
func (r *Registry) RecordFallback() {
	r.WorkerFallbacksTotal.Inc()
}

// RecordVisible records a visible-subset recomputation.
func (r *Registry) RecordVisible(visibleNodes, totalNodes, visibleEdges, totalEdges int, zoom float64, large, indexed bool, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.VisibleNodes.Set(float64(visibleNodes))
	r.TotalNodes.Set(float64(totalNodes))
	r.VisibleEdges.Set(float64(visibleEdges))
	r.TotalEdges.Set(float64(totalEdges))
	r.ZoomLevel.Set(zoom)
	if large {
		r.LargeDataset.Set(1)
	} else {
		r.LargeDataset.Set(0)
	}
	method := "passthrough"
	switch {
	case indexed:
		method = "quadtree"
	case large:
		method = "scan"
	}
	r.CullDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRender records a frame paint on backend.
func (r *Registry) RecordRender(backend string, duration time.Duration, err error) {
	r.RenderDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		r.RenderErrorsTotal.WithLabelValues(backend).Inc()
	}
}

// SetBackend marks backend as the active mode.
func (r *Registry) SetBackend(backend string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range []string{"vector", "gpu"} {
		v := 0.0
		if b == backend {
			v = 1
		}
		r.BackendMode.WithLabelValues(b).Set(v)
	}
}

// RecordHTTPRequest records an HTTP request.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
