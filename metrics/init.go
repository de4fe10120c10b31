package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initLayoutMetrics() {
	r.LayoutRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphview_layout_runs_total",
			Help: "Total number of layout runs",
		},
		[]string{"mode", "status"},
	)

	r.LayoutDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphview_layout_duration_seconds",
			Help:    "Layout run duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"mode"},
	)

	r.LayoutTicks = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphview_layout_ticks",
			Help:    "Ticks applied per completed layout run",
			Buckets: []float64{10, 50, 100, 300, 1000},
		},
	)

	r.WorkerSubmissionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphview_worker_submissions_total",
			Help: "Background worker submissions by outcome",
		},
		[]string{"worker", "outcome"},
	)

	r.WorkerFallbacksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphview_worker_fallbacks_total",
			Help: "Layouts computed synchronously after a worker failure",
		},
	)
}

func (r *Registry) initViewMetrics() {
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}
	r.VisibleNodes = gauge("graphview_visible_nodes", "Nodes in the last visible subset")
	r.TotalNodes = gauge("graphview_total_nodes", "Nodes in the loaded graph")
	r.VisibleEdges = gauge("graphview_visible_edges", "Edges in the last visible subset")
	r.TotalEdges = gauge("graphview_total_edges", "Edges in the loaded graph")
	r.ZoomLevel = gauge("graphview_zoom_level", "Current view scale")
	r.LargeDataset = gauge("graphview_large_dataset", "1 when large-dataset mode is active")

	r.CullDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphview_cull_duration_seconds",
			Help:    "Visible-subset computation time in seconds",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.016, 0.05, 0.1},
		},
		[]string{"method"},
	)
}

func (r *Registry) initRenderMetrics() {
	r.RenderDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphview_render_duration_seconds",
			Help:    "Frame render time in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.016, 0.033, 0.1, 0.5},
		},
		[]string{"backend"},
	)

	r.RenderErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphview_render_errors_total",
			Help: "Frames that failed at the render boundary",
		},
		[]string{"backend"},
	)

	r.BackendMode = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphview_backend_mode",
			Help: "1 for the active render backend",
		},
		[]string{"backend"},
	)
}

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphview_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	r.ActiveSessions = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "graphview_active_sessions",
			Help: "Currently mounted viewer sessions",
		},
	)
}
