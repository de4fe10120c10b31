package graph

import (
	"errors"
	"fmt"

	"github.com/TFMV/graphview/models"
)

// ErrNodeNotFound is returned when an id is not in the model.
var ErrNodeNotFound = errors.New("node not found")

// NodeFilter is a function type used to filter nodes in queries
type NodeFilter func(node *models.Node) bool

// EdgeFilter is a function type used to filter edges in queries
type EdgeFilter func(edge *models.Edge) bool

// FindNodeByID returns a node by its ID
func (m *Model) FindNodeByID(id string) (*models.Node, error) {
	n, ok := m.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// FindIncidentEdges returns all edges touching a node, in either direction
func (m *Model) FindIncidentEdges(nodeID string) []models.Edge {
	var result []models.Edge
	for _, edge := range m.edges {
		if edge.Source == nodeID || edge.Target == nodeID {
			result = append(result, edge)
		}
	}
	return result
}

// FindConnectedNodes returns all nodes directly connected to a node, in
// model order
func (m *Model) FindConnectedNodes(nodeID string) []*models.Node {
	seen := make(map[int]bool)
	for _, se := range m.simEdges {
		if se.Source.ID == nodeID && se.Target.ID != nodeID {
			seen[se.TargetIndex] = true
		}
		if se.Target.ID == nodeID && se.Source.ID != nodeID {
			seen[se.SourceIndex] = true
		}
	}

	result := make([]*models.Node, 0, len(seen))
	for i, node := range m.nodes {
		if seen[i] {
			result = append(result, node)
		}
	}
	return result
}

// FilterNodes returns nodes that match the provided filter function
func (m *Model) FilterNodes(filter NodeFilter) []*models.Node {
	var result []*models.Node
	for _, node := range m.nodes {
		if filter(node) {
			result = append(result, node)
		}
	}
	return result
}

// FilterEdges returns edges that match the provided filter function
func (m *Model) FilterEdges(filter EdgeFilter) []models.Edge {
	var result []models.Edge
	for i := range m.edges {
		if filter(&m.edges[i]) {
			result = append(result, m.edges[i])
		}
	}
	return result
}
