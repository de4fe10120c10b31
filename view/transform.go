// Package view tracks the pan/zoom transform that maps world coordinates to
// screen pixels.
package view

import (
	"math"

	"github.com/TFMV/graphview/models"
)

// Zoom limits and wheel sensitivity.
const (
	DefaultMinScale = 0.05
	DefaultMaxScale = 20.0
	wheelFactor     = 0.002
)

// Transform maps world to screen as screen = world*Scale + Translate.
type Transform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translate_x"`
	TranslateY float64 `json:"translate_y"`
}

// Identity is the unit transform.
func Identity() Transform { return Transform{Scale: 1} }

// WorldToScreen applies the transform.
func (t Transform) WorldToScreen(p models.Point) models.Point {
	return models.Point{X: p.X*t.Scale + t.TranslateX, Y: p.Y*t.Scale + t.TranslateY}
}

// ScreenToWorld applies the inverse transform.
func (t Transform) ScreenToWorld(p models.Point) models.Point {
	return models.Point{X: (p.X - t.TranslateX) / t.Scale, Y: (p.Y - t.TranslateY) / t.Scale}
}

// WorldBounds returns the world-space rectangle visible on a width×height
// screen, grown by padding screen pixels on every side.
func (t Transform) WorldBounds(width, height, padding float64) models.Bounds {
	tl := t.ScreenToWorld(models.Point{X: -padding, Y: -padding})
	br := t.ScreenToWorld(models.Point{X: width + padding, Y: height + padding})
	return models.Bounds{Left: tl.X, Top: tl.Y, Right: br.X, Bottom: br.Y}
}

// Button identifies a pointer button. Only ButtonPrimary drags.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// Controller applies wheel and drag input to a Transform. It is owned by one
// view and is not safe for concurrent use.
type Controller struct {
	t        Transform
	minScale float64
	maxScale float64

	dragging  bool
	dragStart models.Point
	dragFrom  Transform
}

// NewController returns a controller at the identity transform. Invalid
// limits fall back to the defaults.
func NewController(minScale, maxScale float64) *Controller {
	if minScale <= 0 || maxScale <= 0 || minScale > maxScale {
		minScale, maxScale = DefaultMinScale, DefaultMaxScale
	}
	return &Controller{t: Identity(), minScale: minScale, maxScale: maxScale}
}

// Transform returns the current transform.
func (c *Controller) Transform() Transform { return c.t }

// Set replaces the transform, clamping its scale.
func (c *Controller) Set(t Transform) {
	t.Scale = c.clamp(t.Scale)
	c.t = t
}

// Wheel zooms around the cursor. Negative deltaY zooms in. The world point
// under cursor stays under cursor. It reports whether the transform changed.
func (c *Controller) Wheel(cursor models.Point, deltaY float64) bool {
	if deltaY == 0 || math.IsNaN(deltaY) || math.IsInf(deltaY, 0) {
		return false
	}
	return c.ZoomAt(cursor, math.Pow(2, -deltaY*wheelFactor))
}

// ZoomAt multiplies the scale by factor around cursor.
func (c *Controller) ZoomAt(cursor models.Point, factor float64) bool {
	k := c.clamp(c.t.Scale * factor)
	if k == c.t.Scale {
		return false
	}
	world := c.t.ScreenToWorld(cursor)
	c.t = Transform{
		Scale:      k,
		TranslateX: cursor.X - world.X*k,
		TranslateY: cursor.Y - world.Y*k,
	}
	return true
}

// PointerDown starts a drag if button is primary.
func (c *Controller) PointerDown(p models.Point, button Button) bool {
	if button != ButtonPrimary {
		return false
	}
	c.dragging = true
	c.dragStart = p
	c.dragFrom = c.t
	return true
}

// PointerMove pans by the delta since the drag started.
func (c *Controller) PointerMove(p models.Point) bool {
	if !c.dragging {
		return false
	}
	c.t.TranslateX = c.dragFrom.TranslateX + (p.X - c.dragStart.X)
	c.t.TranslateY = c.dragFrom.TranslateY + (p.Y - c.dragStart.Y)
	return true
}

// PointerUp ends a drag.
func (c *Controller) PointerUp() {
	c.dragging = false
}

// Dragging reports whether a drag is in progress.
func (c *Controller) Dragging() bool { return c.dragging }

// Reset returns to the identity transform.
func (c *Controller) Reset() {
	c.dragging = false
	c.t = Identity()
	c.t.Scale = c.clamp(1)
}

// FitBounds scales and centers b on a width×height screen with padding
// pixels on each side.
func (c *Controller) FitBounds(b models.Bounds, width, height, padding float64) {
	w, h := b.Width(), b.Height()
	availW, availH := width-2*padding, height-2*padding
	if availW <= 0 || availH <= 0 {
		availW, availH = width, height
	}

	k := 1.0
	switch {
	case w > 0 && h > 0:
		k = math.Min(availW/w, availH/h)
	case w > 0:
		k = availW / w
	case h > 0:
		k = availH / h
	}
	k = c.clamp(k)

	cx := (b.Left + b.Right) / 2
	cy := (b.Top + b.Bottom) / 2
	c.t = Transform{Scale: k, TranslateX: width/2 - cx*k, TranslateY: height/2 - cy*k}
}

// FocusNode centers p on screen at the current scale.
func (c *Controller) FocusNode(p models.Point, width, height float64) {
	c.t.TranslateX = width/2 - p.X*c.t.Scale
	c.t.TranslateY = height/2 - p.Y*c.t.Scale
}

func (c *Controller) clamp(k float64) float64 {
	if math.IsNaN(k) {
		return c.t.Scale
	}
	return math.Max(c.minScale, math.Min(c.maxScale, k))
}

// Extent returns the bounding box of the given node positions, skipping
// non-finite ones. ok is false when there are none.
func Extent(nodes []*models.Node) (b models.Bounds, ok bool) {
	for _, n := range nodes {
		if !n.IsFinite() {
			continue
		}
		if !ok {
			b = models.Bounds{Left: n.X, Right: n.X, Top: n.Y, Bottom: n.Y}
			ok = true
			continue
		}
		b.Left = math.Min(b.Left, n.X)
		b.Right = math.Max(b.Right, n.X)
		b.Top = math.Min(b.Top, n.Y)
		b.Bottom = math.Max(b.Bottom, n.Y)
	}
	return b, ok
}
