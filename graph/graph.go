// Package graph holds the per-load graph snapshot consumed by the layout,
// culling and rendering layers.
package graph

import (
	"github.com/google/uuid"

	"github.com/TFMV/graphview/models"
)

// SimulationEdge is an edge resolved to direct node references. It is built
// once per model and never leaves the layout/render boundary.
type SimulationEdge struct {
	Source      *models.Node
	Target      *models.Node
	SourceIndex int
	TargetIndex int
	Strength    float64
}

// Model is an immutable snapshot of nodes and edges for one data load.
//
// The structure (node set, edge set, indices) never changes after New; a new
// load produces a new Model. Node positions are the only mutable state and
// are owned by the layout engine while a pass runs.
type Model struct {
	id       string
	nodes    []*models.Node
	index    map[string]int
	edges    []models.Edge
	simEdges []SimulationEdge

	droppedEdges int
	droppedNodes int
}

// New builds a model from raw node and edge lists.
//
// Nodes with an empty or duplicate id are skipped (first occurrence wins).
// Edges whose source or target is absent are dropped silently; the count is
// available from DroppedEdges.
func New(nodes []models.Node, edges []models.Edge) *Model {
	m := &Model{
		id:       uuid.New().String(),
		nodes:    make([]*models.Node, 0, len(nodes)),
		index:    make(map[string]int, len(nodes)),
		edges:    make([]models.Edge, 0, len(edges)),
		simEdges: make([]SimulationEdge, 0, len(edges)),
	}

	for i := range nodes {
		n := nodes[i].Clone()
		if n.ID == "" {
			m.droppedNodes++
			continue
		}
		if _, dup := m.index[n.ID]; dup {
			m.droppedNodes++
			continue
		}
		if n.Label == "" {
			n.Label = n.ID
		}
		m.index[n.ID] = len(m.nodes)
		m.nodes = append(m.nodes, &n)
	}

	for _, e := range edges {
		si, okS := m.index[e.Source]
		ti, okT := m.index[e.Target]
		if !okS || !okT {
			m.droppedEdges++
			continue
		}
		e.Strength = models.ClampStrength(e.Strength)
		m.edges = append(m.edges, e)
		m.simEdges = append(m.simEdges, SimulationEdge{
			Source:      m.nodes[si],
			Target:      m.nodes[ti],
			SourceIndex: si,
			TargetIndex: ti,
			Strength:    e.Strength,
		})
	}

	return m
}

// ID uniquely identifies this load.
func (m *Model) ID() string { return m.id }

// Nodes returns the nodes in stable array order.
func (m *Model) Nodes() []*models.Node { return m.nodes }

// Edges returns the id-based edges that survived validation.
func (m *Model) Edges() []models.Edge { return m.edges }

// SimulationEdges returns the resolved edges, parallel to Edges.
func (m *Model) SimulationEdges() []SimulationEdge { return m.simEdges }

// Lookup returns the node with the given id in O(1).
func (m *Model) Lookup(id string) (*models.Node, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return m.nodes[i], true
}

// IndexOf returns the array position of a node id, or -1.
func (m *Model) IndexOf(id string) int {
	if i, ok := m.index[id]; ok {
		return i
	}
	return -1
}

// NodeCount returns the number of nodes.
func (m *Model) NodeCount() int { return len(m.nodes) }

// EdgeCount returns the number of valid edges.
func (m *Model) EdgeCount() int { return len(m.edges) }

// DroppedEdges returns how many input edges referenced unknown nodes.
func (m *Model) DroppedEdges() int { return m.droppedEdges }

// DroppedNodes returns how many input nodes had an empty or duplicate id.
func (m *Model) DroppedNodes() int { return m.droppedNodes }
