// Package models provides the data structures shared by the layout, culling
// and rendering layers of graphview.
package models

// Node represents a node in the graph.
//
// Identity is the ID; everything else is a display or physics attribute.
// X/Y and VX/VY are owned by the layout engine while a simulation pass is
// running and are read-only for the renderers afterwards.
type Node struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Cluster     *int     `json:"cluster,omitempty"`
	Degree      *float64 `json:"degree,omitempty"`
	Betweenness *float64 `json:"betweenness,omitempty"`
	Eigenvector *float64 `json:"eigenvector,omitempty"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	VX          float64  `json:"vx"`
	VY          float64  `json:"vy"`
}

// Edge represents an id-based connection between two nodes. This is the only
// edge form visible outside the layout/render boundary.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Strength float64  `json:"strength"`
	Rerank   *float64 `json:"rerank,omitempty"`
	Yes      *bool    `json:"yes,omitempty"`
}

// Point is a 2D coordinate in either world or screen space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is an axis-aligned rectangle in world coordinates. Top is the
// smaller y value (screen orientation).
type Bounds struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Contains reports whether p lies inside b. The border counts as inside.
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.Left && p.X <= b.Right && p.Y >= b.Top && p.Y <= b.Bottom
}

// Intersects reports whether two rectangles overlap.
func (b Bounds) Intersects(o Bounds) bool {
	return b.Left <= o.Right && o.Left <= b.Right && b.Top <= o.Bottom && o.Top <= b.Bottom
}

// Width of the rectangle.
func (b Bounds) Width() float64 { return b.Right - b.Left }

// Height of the rectangle.
func (b Bounds) Height() float64 { return b.Bottom - b.Top }

// MinStrength and MaxStrength bound Edge.Strength.
const (
	MinStrength = 0.0
	MaxStrength = 1.0
)
