// Package spatial culls positioned nodes against a viewport. Above the
// large-dataset threshold a point quadtree is built over the current
// positions; below it the full set is used directly.
package spatial

import (
	"math"
	"sort"

	"github.com/TFMV/graphview/models"
)

const (
	leafCapacity = 16
	maxDepth     = 24
)

type quadNode struct {
	bounds   models.Bounds
	points   []int
	children *[4]quadNode
	depth    int
}

// Quadtree is an immutable point index. It is rebuilt from a snapshot of
// positions, never updated in place.
type Quadtree struct {
	root   *quadNode
	points []models.Point
	size   int
}

// Build indexes the given points. Points with a NaN or infinite coordinate
// are left out, so they can never be reported as visible.
func Build(points []models.Point) *Quadtree {
	q := &Quadtree{points: points}
	bounds, ok := extent(points)
	if !ok {
		return q
	}
	q.root = &quadNode{bounds: bounds}
	for i, p := range points {
		if !finite(p) {
			continue
		}
		q.root.insert(i, points)
		q.size++
	}
	return q
}

// BuildFromNodes indexes node positions in array order.
func BuildFromNodes(nodes []*models.Node) *Quadtree {
	return Build(Positions(nodes))
}

// Positions snapshots node positions in array order.
func Positions(nodes []*models.Node) []models.Point {
	pts := make([]models.Point, len(nodes))
	for i, n := range nodes {
		pts[i] = n.Position()
	}
	return pts
}

// Len returns the number of indexed points.
func (q *Quadtree) Len() int { return q.size }

// Query returns the indices of every point inside b (borders inclusive) in
// ascending order.
func (q *Quadtree) Query(b models.Bounds) []int {
	if q.root == nil {
		return nil
	}
	var out []int
	q.root.query(b, q.points, &out)
	sort.Ints(out)
	return out
}

func (n *quadNode) insert(i int, points []models.Point) {
	if n.children != nil {
		n.child(points[i]).insert(i, points)
		return
	}
	n.points = append(n.points, i)
	if len(n.points) <= leafCapacity || n.depth >= maxDepth {
		return
	}

	midX := (n.bounds.Left + n.bounds.Right) / 2
	midY := (n.bounds.Top + n.bounds.Bottom) / 2
	b := n.bounds
	n.children = &[4]quadNode{
		{bounds: models.Bounds{Left: b.Left, Right: midX, Top: b.Top, Bottom: midY}, depth: n.depth + 1},
		{bounds: models.Bounds{Left: midX, Right: b.Right, Top: b.Top, Bottom: midY}, depth: n.depth + 1},
		{bounds: models.Bounds{Left: b.Left, Right: midX, Top: midY, Bottom: b.Bottom}, depth: n.depth + 1},
		{bounds: models.Bounds{Left: midX, Right: b.Right, Top: midY, Bottom: b.Bottom}, depth: n.depth + 1},
	}
	existing := n.points
	n.points = nil
	for _, j := range existing {
		n.child(points[j]).insert(j, points)
	}
}

func (n *quadNode) child(p models.Point) *quadNode {
	midX := (n.bounds.Left + n.bounds.Right) / 2
	midY := (n.bounds.Top + n.bounds.Bottom) / 2
	q := 0
	if p.X >= midX {
		q |= 1
	}
	if p.Y >= midY {
		q |= 2
	}
	return &n.children[q]
}

func (n *quadNode) query(b models.Bounds, points []models.Point, out *[]int) {
	if !n.bounds.Intersects(b) {
		return
	}
	if n.children == nil {
		for _, i := range n.points {
			if b.Contains(points[i]) {
				*out = append(*out, i)
			}
		}
		return
	}
	for c := range n.children {
		n.children[c].query(b, points, out)
	}
}

func extent(points []models.Point) (models.Bounds, bool) {
	b := models.Bounds{Left: math.Inf(1), Right: math.Inf(-1), Top: math.Inf(1), Bottom: math.Inf(-1)}
	found := false
	for _, p := range points {
		if !finite(p) {
			continue
		}
		found = true
		b.Left = math.Min(b.Left, p.X)
		b.Right = math.Max(b.Right, p.X)
		b.Top = math.Min(b.Top, p.Y)
		b.Bottom = math.Max(b.Bottom, p.Y)
	}
	return b, found
}

func finite(p models.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
