package physics

import "math"

// maxTreeDepth bounds subdivision so that coincident bodies terminate in a
// shared leaf instead of recursing forever.
const maxTreeDepth = 32

// barnesHutNode is a quadtree cell carrying aggregate mass for the many-body
// approximation. Every body has unit mass.
type barnesHutNode struct {
	x, y, size float64

	centerX, centerY float64
	mass             float64

	bodies   []int
	children [4]*barnesHutNode
	leaf     bool
	depth    int
}

func newBarnesHutNode(x, y, size float64, depth int) *barnesHutNode {
	return &barnesHutNode{x: x, y: y, size: size, leaf: true, depth: depth}
}

func (n *barnesHutNode) insert(i int, xs, ys []float64) {
	px, py := xs[i], ys[i]
	total := n.mass + 1
	n.centerX = (n.centerX*n.mass + px) / total
	n.centerY = (n.centerY*n.mass + py) / total
	n.mass = total

	if n.leaf {
		if len(n.bodies) == 0 || n.depth >= maxTreeDepth {
			n.bodies = append(n.bodies, i)
			return
		}
		n.leaf = false
		existing := n.bodies
		n.bodies = nil
		half := n.size / 2
		n.children[0] = newBarnesHutNode(n.x, n.y, half, n.depth+1)
		n.children[1] = newBarnesHutNode(n.x+half, n.y, half, n.depth+1)
		n.children[2] = newBarnesHutNode(n.x, n.y+half, half, n.depth+1)
		n.children[3] = newBarnesHutNode(n.x+half, n.y+half, half, n.depth+1)
		for _, b := range existing {
			n.child(xs[b], ys[b]).insert(b, xs, ys)
		}
	}
	n.child(px, py).insert(i, xs, ys)
}

func (n *barnesHutNode) child(px, py float64) *barnesHutNode {
	half := n.size / 2
	q := 0
	if px >= n.x+half {
		q |= 1
	}
	if py >= n.y+half {
		q |= 2
	}
	return n.children[q]
}

// pairForce converts a displacement toward a body (or body aggregate) of the
// given mass into a velocity delta.
type pairForce func(dx, dy, mass float64) (float64, float64)

// force accumulates the velocity delta on body i at (px, py). Cells whose
// size²/distance² is below theta2 are treated as a single aggregate.
func (n *barnesHutNode) force(i int, px, py, theta2 float64, fn pairForce) (float64, float64) {
	if n == nil || n.mass == 0 {
		return 0, 0
	}

	if n.leaf {
		var fx, fy float64
		for _, b := range n.bodies {
			if b == i {
				continue
			}
			// Leaves store only indices, so the aggregate center stands in
			// for each body; bodies in one leaf share a position unless the
			// depth cap was hit.
			dx, dy := fn(n.centerX-px, n.centerY-py, 1)
			fx += dx
			fy += dy
		}
		return fx, fy
	}

	dx := n.centerX - px
	dy := n.centerY - py
	d2 := dx*dx + dy*dy
	if d2 > 0 && n.size*n.size/d2 < theta2 {
		return fn(dx, dy, n.mass)
	}

	var fx, fy float64
	for _, c := range n.children {
		cx, cy := c.force(i, px, py, theta2, fn)
		fx += cx
		fy += cy
	}
	return fx, fy
}

// buildBarnesHutTree constructs a square quadtree covering every position.
func buildBarnesHutTree(xs, ys []float64) *barnesHutNode {
	if len(xs) == 0 {
		return nil
	}

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < len(xs); i++ {
		minX = math.Min(minX, xs[i])
		maxX = math.Max(maxX, xs[i])
		minY = math.Min(minY, ys[i])
		maxY = math.Max(maxY, ys[i])
	}

	size := math.Max(maxX-minX, maxY-minY)
	if size == 0 {
		size = 1
	}
	// Pad so bodies on the max edge fall strictly inside.
	size *= 1.0001

	root := newBarnesHutNode(minX, minY, size, 0)
	for i := range xs {
		root.insert(i, xs, ys)
	}
	return root
}
