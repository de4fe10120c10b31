// Package export produces the download artifacts for a graph model: a flat
// CSV of node records and a JSON snapshot of the whole model.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
)

// NodeColumns is the header row of the CSV dump.
var NodeColumns = []string{"id", "label", "cluster", "degree", "betweenness", "eigenvector", "x", "y"}

// WriteNodesCSV writes one row per node. Absent attributes are empty cells.
func WriteNodesCSV(w io.Writer, nodes []*models.Node) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(NodeColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, n := range nodes {
		row := []string{
			n.ID,
			n.Label,
			optInt(n.Cluster),
			optFloat(n.Degree),
			optFloat(n.Betweenness),
			optFloat(n.Eigenvector),
			strconv.FormatFloat(n.X, 'f', -1, 64),
			strconv.FormatFloat(n.Y, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row for %s: %w", n.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Snapshot is the JSON form of a model. Edges are the id-based edges that
// survived validation.
type Snapshot struct {
	ID           string         `json:"id"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Nodes        []models.Node  `json:"nodes"`
	Edges        []models.Edge  `json:"edges"`
	DroppedEdges int            `json:"dropped_edges"`
	DroppedNodes int            `json:"dropped_nodes"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewSnapshot copies the model's current state.
func NewSnapshot(m *graph.Model, metadata map[string]any) Snapshot {
	s := Snapshot{
		ID:           m.ID(),
		GeneratedAt:  time.Now().UTC(),
		Nodes:        make([]models.Node, 0, m.NodeCount()),
		Edges:        append(make([]models.Edge, 0, m.EdgeCount()), m.Edges()...),
		DroppedEdges: m.DroppedEdges(),
		DroppedNodes: m.DroppedNodes(),
		Metadata:     metadata,
	}
	for _, n := range m.Nodes() {
		s.Nodes = append(s.Nodes, n.Clone())
	}
	return s
}

// WriteJSON writes an indented snapshot of m.
func WriteJSON(w io.Writer, m *graph.Model, metadata map[string]any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewSnapshot(m, metadata)); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}
