// Package viewer is the mount contract embedding pages talk to. A Viewer
// owns one GraphModel at a time, drives layout (inline or through a
// background worker), recomputes the visible subset on every view change and
// paints frames through the backend chosen by the render selector.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/metrics"
	"github.com/TFMV/graphview/models"
	"github.com/TFMV/graphview/physics"
	"github.com/TFMV/graphview/render"
	"github.com/TFMV/graphview/session"
	"github.com/TFMV/graphview/spatial"
	"github.com/TFMV/graphview/view"
	"github.com/TFMV/graphview/worker"
)

var (
	// ErrUnmounted is returned by every operation after Unmount.
	ErrUnmounted = errors.New("viewer unmounted")
	// ErrNodeNotFound is returned when an id is not in the current model.
	ErrNodeNotFound = graph.ErrNodeNotFound
)

// clickSlop is how far, in pixels, a pointer may travel between down and up
// and still count as a click.
const clickSlop = 3.0

// MetricsReport is delivered on every visible-subset recomputation.
type MetricsReport struct {
	VisibleNodes   int     `json:"visibleNodes"`
	TotalNodes     int     `json:"totalNodes"`
	VisibleEdges   int     `json:"visibleEdges"`
	TotalEdges     int     `json:"totalEdges"`
	ZoomLevel      float64 `json:"zoomLevel"`
	IsLargeDataset bool    `json:"isLargeDataset"`
}

// Options configures a mount. Every field is optional.
type Options struct {
	SessionID string

	OnNodeSelect     func(n *models.Node)
	OnMetricsReport  func(MetricsReport)
	OnLayoutComplete func(physics.Stats)

	Capability render.Capability
	Escalation session.EscalationConfig
	Store      session.OverrideStore

	// Offload runs layout on a background worker.
	Offload bool
	Layout  physics.Config

	LargeThreshold  int
	EscalationBytes int64
	// DataBytes is the serialized size of the loaded data, used by the
	// escalation heuristic.
	DataBytes int64
	// CullPadding grows the viewport by this many screen pixels on each side.
	CullPadding float64

	MinScale float64
	MaxScale float64

	Render  *render.OutputOptions
	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// Output is one painted frame.
type Output struct {
	Mode        render.RenderMode `json:"mode"`
	ContentType string            `json:"content_type"`
	Body        []byte            `json:"-"`
	Decision    render.Decision   `json:"decision"`
	Report      MetricsReport     `json:"report"`
}

// Viewer is a mounted graph view. Methods are safe for concurrent use; the
// layout worker's results are applied under the same lock.
type Viewer struct {
	mu     sync.Mutex
	id     string
	opts   Options
	logger *zap.Logger

	width, height float64
	model         *graph.Model
	dataBytes     int64

	selector *render.Selector
	backends *render.Backends
	ctrl     *view.Controller
	paint    func(render.RenderMode, *render.Frame) ([]byte, error)

	hovered  string
	selected string
	downAt   models.Point
	decision render.Decision
	visible  spatial.Visible
	report   MetricsReport

	layoutWorker *worker.Slot[physics.Request, physics.Response]
	layoutJob    worker.Job[physics.Request, physics.Response]
	layoutDone   chan struct{}
	layoutStats  physics.Stats

	indexWorker  *worker.Slot[spatial.IndexRequest, spatial.IndexResponse]
	index        *spatial.Quadtree
	indexKey     string
	indexPending string
	posVersion   uint64

	unmounted bool
}

// Mount creates a view over nodes and edges on a width×height canvas and
// starts the first layout. With Offload set, Mount returns before the layout
// finishes; use WaitLayout to block.
func Mount(ctx context.Context, nodes []models.Node, edges []models.Edge, width, height float64, opts Options) (*Viewer, error) {
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LargeThreshold <= 0 {
		opts.LargeThreshold = spatial.DefaultThreshold
	}
	if opts.CullPadding < 0 {
		opts.CullPadding = 0
	}

	selCfg := render.SelectorConfig{
		ForceGPU:        opts.Escalation.ForceGPU,
		EscalationBytes: opts.EscalationBytes,
		LargeThreshold:  opts.LargeThreshold,
	}
	if opts.Store != nil {
		mode, ok, err := opts.Store.Get(ctx, opts.SessionID)
		if err != nil {
			logger.Warn("failed to read backend override", zap.String("session", opts.SessionID), zap.Error(err))
		} else if ok {
			selCfg.Override = &mode
		}
	}

	v := &Viewer{
		id:        opts.SessionID,
		opts:      opts,
		logger:    logger.With(zap.String("session", opts.SessionID)),
		width:     width,
		height:    height,
		selector:  render.NewSelector(selCfg),
		ctrl:      view.NewController(opts.MinScale, opts.MaxScale),
		layoutJob: physics.Compute,
	}

	capability := v.selector.Probe(opts.Capability)
	if !capability.GPUContext {
		v.logger.Info("gpu unavailable, locked to vector rendering")
	}
	v.backends = render.NewBackends(capability, opts.Render)
	v.paint = v.backends.Draw

	if err := v.Load(ctx, nodes, edges, opts.DataBytes); err != nil {
		return nil, err
	}
	if opts.Metrics != nil {
		opts.Metrics.ActiveSessions.Inc()
	}
	return v, nil
}

// ID returns the session id.
func (v *Viewer) ID() string { return v.id }

// Load replaces the model. Any outstanding layout or index job is
// terminated and its eventual result discarded.
func (v *Viewer) Load(ctx context.Context, nodes []models.Node, edges []models.Edge, dataBytes int64) error {
	m := graph.New(nodes, edges)
	if m.DroppedEdges() > 0 || m.DroppedNodes() > 0 {
		v.logger.Debug("dropped invalid graph elements",
			zap.Int("edges", m.DroppedEdges()),
			zap.Int("nodes", m.DroppedNodes()))
	}

	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return ErrUnmounted
	}
	hadSelection := v.selected != ""
	v.stopWorkersLocked()
	v.model = m
	v.dataBytes = dataBytes
	v.hovered, v.selected = "", ""
	v.index, v.indexKey, v.indexPending = nil, "", ""
	v.posVersion++
	v.layoutDone = make(chan struct{})
	v.layoutStats = physics.Stats{}
	v.logger.Info("graph loaded",
		zap.String("model", m.ID()),
		zap.Int("nodes", m.NodeCount()),
		zap.Int("edges", m.EdgeCount()))

	var n notifications
	if hadSelection {
		n.selectChanged = true
	}
	if v.opts.Offload {
		if err := v.submitLayoutLocked(); err != nil {
			v.logger.Warn("layout worker unavailable, computing synchronously", zap.Error(err))
			v.recordFallback()
			n.merge(v.layoutSyncLocked(ctx))
		} else {
			n.merge(v.refreshLocked())
		}
	} else {
		n.merge(v.layoutSyncLocked(ctx))
	}
	v.mu.Unlock()

	v.notify(n)
	return nil
}

// WaitLayout blocks until the current model's layout has been applied.
func (v *Viewer) WaitLayout(ctx context.Context) (physics.Stats, error) {
	v.mu.Lock()
	done := v.layoutDone
	v.mu.Unlock()

	select {
	case <-done:
		v.mu.Lock()
		defer v.mu.Unlock()
		return v.layoutStats, nil
	case <-ctx.Done():
		return physics.Stats{}, ctx.Err()
	}
}

// Relayout reruns the simulation on the current model.
func (v *Viewer) Relayout(ctx context.Context) error {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return ErrUnmounted
	}
	select {
	case <-v.layoutDone:
		v.layoutDone = make(chan struct{})
	default:
	}

	var n notifications
	if v.opts.Offload {
		if err := v.submitLayoutLocked(); err == nil {
			v.mu.Unlock()
			return nil
		}
		v.recordFallback()
	}
	n = v.layoutSyncLocked(ctx)
	v.mu.Unlock()
	v.notify(n)
	return nil
}

// SetOffload enables or disables the background layout worker. Disabling
// tears the worker down; a layout it had not delivered yet is finished
// synchronously.
func (v *Viewer) SetOffload(enabled bool) {
	v.mu.Lock()
	v.opts.Offload = enabled
	var n notifications
	if !enabled && v.layoutWorker != nil {
		v.layoutWorker.Terminate()
		v.layoutWorker = nil
		v.logger.Debug("layout offload disabled")
		select {
		case <-v.layoutDone:
		default:
			v.recordFallback()
			n = v.layoutSyncLocked(context.Background())
		}
	}
	v.mu.Unlock()
	v.notify(n)
}

// Unmount terminates workers and releases the view. Further calls fail
// with ErrUnmounted.
func (v *Viewer) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unmounted {
		return
	}
	v.unmounted = true
	v.stopWorkersLocked()
	if v.opts.Metrics != nil {
		v.opts.Metrics.ActiveSessions.Dec()
	}
	v.logger.Info("viewer unmounted")
}

func (v *Viewer) stopWorkersLocked() {
	if v.layoutWorker != nil {
		v.layoutWorker.Terminate()
		v.layoutWorker = nil
	}
	if v.indexWorker != nil {
		v.indexWorker.Terminate()
		v.indexWorker = nil
	}
}

func (v *Viewer) workerOptions() []worker.Option {
	opts := []worker.Option{worker.WithLogger(v.logger)}
	if v.opts.Metrics != nil {
		opts = append(opts, worker.WithObserver(v.opts.Metrics))
	}
	return opts
}

func (v *Viewer) submitLayoutLocked() error {
	if v.layoutWorker == nil {
		w := physics.NewLayoutWorker(v.layoutJob, v.workerOptions()...)
		v.layoutWorker = w
		go v.pumpLayout(w)
	}
	cfg := v.layoutConfig()
	_, err := v.layoutWorker.Submit(physics.NewRequest(v.model.ID(), v.model.Nodes(), v.model.SimulationEdges(), cfg))
	return err
}

func (v *Viewer) layoutConfig() physics.Config {
	cfg := v.opts.Layout
	cfg.Width, cfg.Height = v.width, v.height
	return cfg
}

func (v *Viewer) pumpLayout(w *worker.Slot[physics.Request, physics.Response]) {
	for {
		select {
		case <-w.Done():
			return
		case r := <-w.Results():
			v.applyLayout(w, r)
		}
	}
}

func (v *Viewer) applyLayout(w *worker.Slot[physics.Request, physics.Response], r worker.Result[physics.Response]) {
	v.mu.Lock()
	if v.unmounted || w != v.layoutWorker || !w.Accept(r) {
		v.mu.Unlock()
		return
	}

	var n notifications
	switch {
	case r.Err != nil:
		v.logger.Warn("offloaded layout failed, computing synchronously", zap.Error(r.Err))
		v.recordLayout("offload", physics.Stats{Duration: r.Elapsed}, r.Err)
		v.recordFallback()
		n = v.layoutSyncLocked(context.Background())
	case r.Value.ModelID != v.model.ID():
		v.mu.Unlock()
		return
	default:
		if err := r.Value.ApplyTo(v.model.Nodes()); err != nil {
			v.logger.Warn("discarding layout result", zap.Error(err))
			v.mu.Unlock()
			return
		}
		v.recordLayout("offload", r.Value.Stats, nil)
		n = v.layoutAppliedLocked(r.Value.Stats)
	}
	v.mu.Unlock()
	v.notify(n)
}

func (v *Viewer) layoutSyncLocked(ctx context.Context) notifications {
	stats, err := physics.Layout(ctx, v.model.Nodes(), v.model.SimulationEdges(), v.layoutConfig())
	v.recordLayout("sync", stats, err)
	if err != nil {
		// Partial positions from a cancelled run are still usable.
		v.logger.Warn("layout interrupted", zap.Error(err), zap.Int("ticks", stats.Ticks))
	}
	return v.layoutAppliedLocked(stats)
}

func (v *Viewer) layoutAppliedLocked(stats physics.Stats) notifications {
	v.layoutStats = stats
	v.posVersion++
	v.index, v.indexKey = nil, ""
	select {
	case <-v.layoutDone:
	default:
		close(v.layoutDone)
	}
	n := v.refreshLocked()
	if v.opts.OnLayoutComplete != nil {
		n.layout = &stats
	}
	return n
}

func (v *Viewer) recordLayout(mode string, stats physics.Stats, err error) {
	if v.opts.Metrics != nil {
		v.opts.Metrics.RecordLayout(mode, stats.Ticks, stats.Duration, err)
	}
}

func (v *Viewer) recordFallback() {
	if v.opts.Metrics != nil {
		v.opts.Metrics.RecordFallback()
	}
}

// notifications are collected under the lock and delivered after it is
// released, so callbacks may call back into the viewer.
type notifications struct {
	report        *MetricsReport
	selectChanged bool
	selected      *models.Node
	layout        *physics.Stats
}

func (n *notifications) merge(o notifications) {
	if o.report != nil {
		n.report = o.report
	}
	if o.selectChanged {
		n.selectChanged = true
		n.selected = o.selected
	}
	if o.layout != nil {
		n.layout = o.layout
	}
}

func (v *Viewer) notify(n notifications) {
	if n.layout != nil && v.opts.OnLayoutComplete != nil {
		v.opts.OnLayoutComplete(*n.layout)
	}
	if n.selectChanged && v.opts.OnNodeSelect != nil {
		v.opts.OnNodeSelect(n.selected)
	}
	if n.report != nil && v.opts.OnMetricsReport != nil {
		v.opts.OnMetricsReport(*n.report)
	}
}

// Model returns the current model.
func (v *Viewer) Model() *graph.Model {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.model
}

// View calls fn with the current model while holding the viewer lock, so
// positions cannot change underneath it. fn must not call back into v.
func (v *Viewer) View(fn func(m *graph.Model) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unmounted {
		return ErrUnmounted
	}
	return fn(v.model)
}

// Decision returns the selector verdict from the last recomputation.
func (v *Viewer) Decision() render.Decision {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.decision
}

// Report returns the last metrics report.
func (v *Viewer) Report() MetricsReport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.report
}

// Visible returns the current visible subset.
func (v *Viewer) Visible() spatial.Visible {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// Transform returns the current pan/zoom transform.
func (v *Viewer) Transform() view.Transform {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctrl.Transform()
}

// Selection returns the hovered and selected node ids.
func (v *Viewer) Selection() (hovered, selected string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hovered, v.selected
}

func (v *Viewer) String() string {
	return fmt.Sprintf("viewer(%s)", v.id)
}
