package viewer

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TFMV/graphview/render"
	"github.com/TFMV/graphview/spatial"
	"github.com/TFMV/graphview/worker"
)

// refreshLocked re-evaluates the backend and recomputes the visible subset.
func (v *Viewer) refreshLocked() notifications {
	start := time.Now()
	var n notifications

	nodes, edges := v.model.Nodes(), v.model.SimulationEdges()
	prev := v.decision
	v.decision = v.selector.Evaluate(v.dataBytes, len(nodes))
	if prev.Mode != v.decision.Mode {
		// A backend swap discards hover and selection.
		if v.selected != "" {
			n.selectChanged = true
		}
		v.hovered, v.selected = "", ""
		v.logger.Info("render backend changed",
			zap.Stringer("from", prev.Mode),
			zap.Stringer("to", v.decision.Mode),
			zap.String("source", v.decision.Source))
	}
	if v.decision.PromptEscalation && !prev.PromptEscalation {
		v.logger.Info("gpu escalation available", zap.Int64("data_bytes", v.dataBytes))
	}

	if v.decision.LargeDataset {
		bounds := v.ctrl.Transform().WorldBounds(v.width, v.height, v.opts.CullPadding)
		v.visible = spatial.Select(nodes, edges, bounds, v.currentIndexLocked())
	} else {
		v.visible = spatial.All(nodes, edges)
	}

	v.report = MetricsReport{
		VisibleNodes:   len(v.visible.Nodes),
		TotalNodes:     len(nodes),
		VisibleEdges:   len(v.visible.Edges),
		TotalEdges:     len(edges),
		ZoomLevel:      v.ctrl.Transform().Scale,
		IsLargeDataset: v.decision.LargeDataset,
	}
	if v.opts.Metrics != nil {
		v.opts.Metrics.RecordVisible(v.report.VisibleNodes, v.report.TotalNodes,
			v.report.VisibleEdges, v.report.TotalEdges, v.report.ZoomLevel,
			v.decision.LargeDataset, v.visible.Indexed, time.Since(start))
		v.opts.Metrics.SetBackend(v.decision.Mode.String())
	}
	report := v.report
	n.report = &report
	return n
}

// currentIndexLocked returns a quadtree matching the current positions, or
// nil when the caller should scan. In GPU mode the tree is built on the
// index worker; in vector mode it is built inline.
func (v *Viewer) currentIndexLocked() *spatial.Quadtree {
	key := fmt.Sprintf("%s#%d", v.model.ID(), v.posVersion)
	if v.index != nil && v.indexKey == key {
		return v.index
	}

	if v.decision.Mode != render.ModeGPU {
		v.index = spatial.BuildFromNodes(v.model.Nodes())
		v.indexKey = key
		return v.index
	}

	if v.indexPending == key {
		return nil
	}
	if v.indexWorker == nil {
		w := spatial.NewIndexWorker(v.workerOptions()...)
		v.indexWorker = w
		go v.pumpIndex(w)
	}
	if _, err := v.indexWorker.Submit(spatial.IndexRequest{ModelID: key, Points: spatial.Positions(v.model.Nodes())}); err != nil {
		v.logger.Warn("index worker unavailable, building inline", zap.Error(err))
		v.index = spatial.BuildFromNodes(v.model.Nodes())
		v.indexKey = key
		return v.index
	}
	v.indexPending = key
	return nil
}

func (v *Viewer) pumpIndex(w *worker.Slot[spatial.IndexRequest, spatial.IndexResponse]) {
	for {
		select {
		case <-w.Done():
			return
		case r := <-w.Results():
			v.applyIndex(w, r)
		}
	}
}

func (v *Viewer) applyIndex(w *worker.Slot[spatial.IndexRequest, spatial.IndexResponse], r worker.Result[spatial.IndexResponse]) {
	v.mu.Lock()
	if v.unmounted || w != v.indexWorker || !w.Accept(r) {
		v.mu.Unlock()
		return
	}
	key := fmt.Sprintf("%s#%d", v.model.ID(), v.posVersion)
	if r.Err != nil || r.Value.ModelID != key {
		if r.Err != nil {
			v.logger.Warn("index build failed", zap.Error(r.Err))
		}
		v.indexPending = ""
		v.mu.Unlock()
		return
	}
	v.index, v.indexKey, v.indexPending = r.Value.Index, key, ""
	n := v.refreshLocked()
	v.mu.Unlock()
	v.notify(n)
}

func (v *Viewer) frameLocked() *render.Frame {
	return &render.Frame{
		Nodes:        v.visible.Nodes,
		Edges:        v.visible.Edges,
		Transform:    v.ctrl.Transform(),
		Width:        v.width,
		Height:       v.height,
		Hovered:      v.hovered,
		Selected:     v.selected,
		LargeDataset: v.decision.LargeDataset,
	}
}

func contentType(m render.RenderMode) string {
	if m == render.ModeGPU {
		return "text/html; charset=utf-8"
	}
	return "image/svg+xml"
}

// RenderFrame paints the current visible subset. Any panic or renderer
// failure is returned as a *RenderError; nothing is retried.
func (v *Viewer) RenderFrame() (out Output, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unmounted {
		return Output{}, ErrUnmounted
	}

	mode := v.decision.Mode
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Output{}
			err = &RenderError{Mode: mode, Cause: fmt.Errorf("%w: %v", ErrRenderPanic, r), Recoverable: true}
		}
		if err != nil {
			v.logger.Error("frame render failed", zap.Stringer("mode", mode), zap.Error(err))
		}
		if v.opts.Metrics != nil {
			v.opts.Metrics.RecordRender(mode.String(), time.Since(start), err)
		}
	}()

	body, perr := v.paint(mode, v.frameLocked())
	if perr != nil {
		return Output{}, &RenderError{Mode: mode, Cause: perr, Recoverable: true}
	}
	return Output{
		Mode:        mode,
		ContentType: contentType(mode),
		Body:        body,
		Decision:    v.decision,
		Report:      v.report,
	}, nil
}
