package viewer

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/TFMV/graphview/models"
	"github.com/TFMV/graphview/render"
	"github.com/TFMV/graphview/view"
)

// withRefresh runs fn under the lock, recomputes the visible subset when fn
// reports a change, and delivers notifications after unlocking.
func (v *Viewer) withRefresh(fn func() (bool, error)) error {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return ErrUnmounted
	}
	changed, err := fn()
	var n notifications
	if err == nil && changed {
		n = v.refreshLocked()
	}
	v.mu.Unlock()
	v.notify(n)
	return err
}

// Wheel zooms around the cursor at (x, y). Negative deltaY zooms in.
func (v *Viewer) Wheel(x, y, deltaY float64) error {
	return v.withRefresh(func() (bool, error) {
		return v.ctrl.Wheel(models.Point{X: x, Y: y}, deltaY), nil
	})
}

// PointerDown starts a drag with the primary button.
func (v *Viewer) PointerDown(x, y float64, button view.Button) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unmounted {
		return ErrUnmounted
	}
	p := models.Point{X: x, Y: y}
	if v.ctrl.PointerDown(p, button) {
		v.downAt = p
	}
	return nil
}

// PointerMove pans while dragging and updates hover otherwise. Hover is
// only tracked on the vector backend.
func (v *Viewer) PointerMove(x, y float64) error {
	p := models.Point{X: x, Y: y}
	return v.withRefresh(func() (bool, error) {
		if v.ctrl.Dragging() {
			return v.ctrl.PointerMove(p), nil
		}
		if v.decision.Mode == render.ModeVector {
			v.hovered, _ = v.backends.Vector.HitTest(v.frameLocked(), p)
		}
		return false, nil
	})
}

// PointerUp ends a drag. A release within a few pixels of the press is a
// click, which selects the node under the pointer or clears the selection.
func (v *Viewer) PointerUp(x, y float64) error {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return ErrUnmounted
	}
	wasDragging := v.ctrl.Dragging()
	v.ctrl.PointerUp()

	var n notifications
	p := models.Point{X: x, Y: y}
	if wasDragging && math.Hypot(p.X-v.downAt.X, p.Y-v.downAt.Y) <= clickSlop && v.decision.Mode == render.ModeVector {
		id, _ := v.backends.Vector.HitTest(v.frameLocked(), p)
		n = v.selectLocked(id)
	}
	v.mu.Unlock()
	v.notify(n)
	return nil
}

// PointerLeave clears hover.
func (v *Viewer) PointerLeave() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hovered = ""
}

// Select selects id programmatically. An empty id clears the selection.
// Selection is unavailable on the GPU backend.
func (v *Viewer) Select(id string) error {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return ErrUnmounted
	}
	if id != "" {
		if _, err := v.model.FindNodeByID(id); err != nil {
			v.mu.Unlock()
			return err
		}
	}
	if v.decision.Mode == render.ModeGPU {
		v.mu.Unlock()
		return fmt.Errorf("selection unavailable in %s mode", render.ModeGPU)
	}
	n := v.selectLocked(id)
	v.mu.Unlock()
	v.notify(n)
	return nil
}

func (v *Viewer) selectLocked(id string) notifications {
	if id == v.selected {
		return notifications{}
	}
	v.selected = id
	n := notifications{selectChanged: true}
	if id != "" {
		node, _ := v.model.Lookup(id)
		n.selected = node
	}
	return n
}

// Resize changes the canvas size.
func (v *Viewer) Resize(width, height float64) error {
	return v.withRefresh(func() (bool, error) {
		if width <= 0 || height <= 0 {
			return false, fmt.Errorf("invalid canvas size %gx%g", width, height)
		}
		changed := width != v.width || height != v.height
		v.width, v.height = width, height
		return changed, nil
	})
}

// FitToView scales and centers the layout on the canvas.
func (v *Viewer) FitToView() error {
	return v.withRefresh(func() (bool, error) {
		b, ok := view.Extent(v.model.Nodes())
		if !ok {
			return false, nil
		}
		v.ctrl.FitBounds(b, v.width, v.height, math.Max(v.opts.CullPadding, 20))
		return true, nil
	})
}

// ResetView returns to the identity transform.
func (v *Viewer) ResetView() error {
	return v.withRefresh(func() (bool, error) {
		v.ctrl.Reset()
		return true, nil
	})
}

// FocusNode centers the node with the given id.
func (v *Viewer) FocusNode(id string) error {
	return v.withRefresh(func() (bool, error) {
		n, err := v.model.FindNodeByID(id)
		if err != nil {
			return false, err
		}
		v.ctrl.FocusNode(n.Position(), v.width, v.height)
		return true, nil
	})
}

// SetTransform replaces the pan/zoom transform.
func (v *Viewer) SetTransform(t view.Transform) error {
	return v.withRefresh(func() (bool, error) {
		v.ctrl.Set(t)
		return true, nil
	})
}

// SetRenderMode records a manual backend override for this session.
// Requesting GPU while capability-locked returns render.ErrGPUUnavailable.
func (v *Viewer) SetRenderMode(ctx context.Context, mode render.RenderMode) error {
	return v.withRefresh(func() (bool, error) {
		if err := v.selector.SetOverride(mode); err != nil {
			return false, err
		}
		if v.opts.Store != nil {
			if err := v.opts.Store.Set(ctx, v.id, mode); err != nil {
				v.logger.Warn("failed to persist backend override", zap.Error(err))
			}
		}
		return true, nil
	})
}

// ClearRenderMode removes the manual override.
func (v *Viewer) ClearRenderMode(ctx context.Context) error {
	return v.withRefresh(func() (bool, error) {
		v.selector.ClearOverride()
		if v.opts.Store != nil {
			if err := v.opts.Store.Clear(ctx, v.id); err != nil {
				v.logger.Warn("failed to clear backend override", zap.Error(err))
			}
		}
		return true, nil
	})
}

// AcceptEscalation confirms the GPU escalation prompt.
func (v *Viewer) AcceptEscalation() error {
	return v.withRefresh(func() (bool, error) {
		return true, v.selector.AcceptEscalation()
	})
}

// DeclineEscalation dismisses the GPU escalation prompt.
func (v *Viewer) DeclineEscalation() error {
	return v.withRefresh(func() (bool, error) {
		v.selector.DeclineEscalation()
		return true, nil
	})
}
