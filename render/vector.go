package render

import (
	"bytes"
	"fmt"
	"html"
	"math"

	"github.com/TFMV/graphview/models"
)

// VectorRenderer outputs SVG. Every node is its own element carrying a
// data-node-id attribute, so pointer events map directly to a node.
type VectorRenderer struct {
	opts *OutputOptions
}

// NewVectorRenderer creates a vector renderer. Nil options use the defaults.
func NewVectorRenderer(opts *OutputOptions) *VectorRenderer {
	return &VectorRenderer{opts: opts.orDefault()}
}

// Mode returns ModeVector.
func (r *VectorRenderer) Mode() RenderMode { return ModeVector }

// Name returns the name of the renderer
func (r *VectorRenderer) Name() string {
	return "SVG Renderer"
}

// Description returns a description of the renderer
func (r *VectorRenderer) Description() string {
	return "Renders the visible subset as Scalable Vector Graphics with per-node styling and hit-testing"
}

// EdgeWidth returns the stroke width for an edge of the given strength.
func (r *VectorRenderer) EdgeWidth(strength float64) float64 {
	return math.Max(0.5, models.ClampStrength(strength)*r.opts.EdgeWidth)
}

// EdgeOpacity returns the stroke opacity for an edge, never below the floor.
func (r *VectorRenderer) EdgeOpacity(strength float64) float64 {
	return math.Max(r.opts.MinOpacity, models.ClampStrength(strength))
}

// NodeRadius grows with degree and saturates at MaxRadius.
func (r *VectorRenderer) NodeRadius(n *models.Node) float64 {
	d := n.DegreeValue()
	if d <= 0 || math.IsNaN(d) {
		return r.opts.MinRadius
	}
	growth := 1 - 1/(1+math.Sqrt(d))
	return r.opts.MinRadius + (r.opts.MaxRadius-r.opts.MinRadius)*growth
}

// ShowLabel reports whether n gets a text label in f.
func ShowLabel(f *Frame, n *models.Node) bool {
	if !f.LargeDataset {
		return true
	}
	return n.ID != "" && (n.ID == f.Hovered || n.ID == f.Selected)
}

// Render creates an SVG representation of the frame
func (r *VectorRenderer) Render(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	o := r.opts
	t := f.Transform
	if t.Scale == 0 {
		t.Scale = 1
	}

	fmt.Fprintf(&buf, `<svg width="%g" height="%g" viewBox="0 0 %g %g" xmlns="http://www.w3.org/2000/svg" data-backend="vector">
<rect width="100%%" height="100%%" fill="%s"/>
<g transform="translate(%g,%g) scale(%g)">
`, f.Width, f.Height, f.Width, f.Height, o.Background, t.TranslateX, t.TranslateY, t.Scale)

	// Draw edges
	buf.WriteString("<g class=\"edges\">\n")
	for _, e := range f.Edges {
		if e.Source == nil || e.Target == nil {
			continue
		}
		fmt.Fprintf(&buf, `<line x1="%g" y1="%g" x2="%g" y2="%g" stroke="%s" stroke-width="%g" stroke-opacity="%g" data-source="%s" data-target="%s"/>
`, e.Source.X, e.Source.Y, e.Target.X, e.Target.Y, o.Palette.EdgeColor,
			r.EdgeWidth(e.Strength), r.EdgeOpacity(e.Strength),
			html.EscapeString(e.Source.ID), html.EscapeString(e.Target.ID))
	}
	buf.WriteString("</g>\n")

	// Draw nodes
	buf.WriteString("<g class=\"nodes\">\n")
	for _, n := range f.Nodes {
		stroke, strokeWidth := "#ffffff", 1.0
		switch n.ID {
		case f.Selected:
			stroke, strokeWidth = "#000000", 3
		case f.Hovered:
			stroke, strokeWidth = "#333333", 2
		}
		radius := r.NodeRadius(n)
		fmt.Fprintf(&buf, `<circle cx="%g" cy="%g" r="%g" fill="%s" stroke="%s" stroke-width="%g" data-node-id="%s"/>
`, n.X, n.Y, radius, o.Palette.NodeColor(n.ClusterID()), stroke, strokeWidth, html.EscapeString(n.ID))
	}
	buf.WriteString("</g>\n")

	// Labels sit above every node.
	buf.WriteString("<g class=\"labels\">\n")
	for _, n := range f.Nodes {
		if n.Label == "" || !ShowLabel(f, n) {
			continue
		}
		fmt.Fprintf(&buf, `<text x="%g" y="%g" font-family="sans-serif" font-size="%g" fill="#333333" text-anchor="middle">%s</text>
`, n.X, n.Y+r.NodeRadius(n)+o.FontSize+2, o.FontSize, html.EscapeString(n.Label))
	}
	buf.WriteString("</g>\n")

	buf.WriteString("</g>\n</svg>")
	return buf.Bytes(), nil
}

// HitTest maps a screen point to the top-most node drawn under it. Nodes
// later in the frame are drawn on top, so they win.
func (r *VectorRenderer) HitTest(f *Frame, screen models.Point) (string, bool) {
	t := f.Transform
	if t.Scale == 0 {
		t.Scale = 1
	}
	world := t.ScreenToWorld(screen)
	for i := len(f.Nodes) - 1; i >= 0; i-- {
		n := f.Nodes[i]
		rad := r.NodeRadius(n)
		dx, dy := world.X-n.X, world.Y-n.Y
		if dx*dx+dy*dy <= rad*rad {
			return n.ID, true
		}
	}
	return "", false
}
