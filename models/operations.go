package models

import "math"

// NewNode creates a node whose label falls back to its id.
func NewNode(id, label string) Node {
	if label == "" {
		label = id
	}
	return Node{ID: id, Label: label}
}

// NewEdge creates an edge with its strength clamped into the allowed range.
func NewEdge(source, target string, strength float64) Edge {
	return Edge{Source: source, Target: target, Strength: ClampStrength(strength)}
}

// ClampStrength bounds s to [MinStrength, MaxStrength]. NaN becomes zero.
func ClampStrength(s float64) float64 {
	if math.IsNaN(s) || s < MinStrength {
		return MinStrength
	}
	if s > MaxStrength {
		return MaxStrength
	}
	return s
}

// Position returns the node position.
func (n *Node) Position() Point {
	return Point{X: n.X, Y: n.Y}
}

// SetPosition sets the position of a node.
func (n *Node) SetPosition(x, y float64) {
	n.X = x
	n.Y = y
}

// ClusterID returns the cluster id, or zero when the node has none.
func (n *Node) ClusterID() int {
	if n.Cluster == nil {
		return 0
	}
	return *n.Cluster
}

// DegreeValue returns the degree attribute, or zero when absent.
func (n *Node) DegreeValue() float64 {
	if n.Degree == nil {
		return 0
	}
	return *n.Degree
}

// Clone returns a deep copy of the node, including its optional fields.
func (n Node) Clone() Node {
	c := n
	if n.Cluster != nil {
		v := *n.Cluster
		c.Cluster = &v
	}
	if n.Degree != nil {
		v := *n.Degree
		c.Degree = &v
	}
	if n.Betweenness != nil {
		v := *n.Betweenness
		c.Betweenness = &v
	}
	if n.Eigenvector != nil {
		v := *n.Eigenvector
		c.Eigenvector = &v
	}
	return c
}

// IsFinite reports whether the node position and velocity hold no NaN or Inf.
func (n *Node) IsFinite() bool {
	for _, v := range [...]float64{n.X, n.Y, n.VX, n.VY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
