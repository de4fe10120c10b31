package spatial

import (
	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
)

// DefaultThreshold is the node count above which large-dataset mode engages.
const DefaultThreshold = 10000

// Visible is the subset of a model handed to a renderer.
type Visible struct {
	Nodes []*models.Node
	Edges []graph.SimulationEdge
	// Indexed is true when the subset came from a quadtree query.
	Indexed bool
	// Culled is false when the full set was passed through untouched.
	Culled bool
}

// IsLarge reports whether nodeCount engages large-dataset mode.
func IsLarge(nodeCount, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return nodeCount > threshold
}

// All returns every node and edge.
func All(nodes []*models.Node, edges []graph.SimulationEdge) Visible {
	return Visible{Nodes: nodes, Edges: edges}
}

// Select returns the nodes inside bounds and the edges whose endpoints are
// both inside. A nil index falls back to a linear scan, which yields the
// same result.
func Select(nodes []*models.Node, edges []graph.SimulationEdge, bounds models.Bounds, index *Quadtree) Visible {
	var idx []int
	if index != nil && len(index.points) == len(nodes) {
		idx = index.Query(bounds)
	} else {
		index = nil
		idx = scan(nodes, bounds)
	}

	in := make([]bool, len(nodes))
	v := Visible{Nodes: make([]*models.Node, 0, len(idx)), Indexed: index != nil, Culled: true}
	for _, i := range idx {
		in[i] = true
		v.Nodes = append(v.Nodes, nodes[i])
	}
	for _, e := range edges {
		if e.SourceIndex < 0 || e.SourceIndex >= len(in) || e.TargetIndex < 0 || e.TargetIndex >= len(in) {
			continue
		}
		if in[e.SourceIndex] && in[e.TargetIndex] {
			v.Edges = append(v.Edges, e)
		}
	}
	return v
}

func scan(nodes []*models.Node, bounds models.Bounds) []int {
	var out []int
	for i, n := range nodes {
		if bounds.Contains(n.Position()) {
			out = append(out, i)
		}
	}
	return out
}
