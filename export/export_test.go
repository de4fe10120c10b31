package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
)

func sampleModel() *graph.Model {
	a := models.NewNode("A", "Alpha")
	cluster, degree := 3, 0.75
	a.Cluster, a.Degree = &cluster, &degree
	a.SetPosition(10.5, -2)
	return graph.New(
		[]models.Node{a, models.NewNode("B", "")},
		[]models.Edge{models.NewEdge("A", "B", 0.4), models.NewEdge("A", "ghost", 1)},
	)
}

func TestWriteNodesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNodesCSV(&buf, sampleModel().Nodes()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, NodeColumns, rows[0])
	assert.Equal(t, []string{"A", "Alpha", "3", "0.75", "", "", "10.5", "-2"}, rows[1])
	assert.Equal(t, "B", rows[2][1], "label falls back to id")
	assert.Equal(t, "", rows[2][2])
}

func TestWriteJSONSnapshot(t *testing.T) {
	m := sampleModel()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, m, map[string]any{"source": "test"}))

	var s Snapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &s))
	assert.Equal(t, m.ID(), s.ID)
	assert.Len(t, s.Nodes, 2)
	require.Len(t, s.Edges, 1)
	assert.Equal(t, "B", s.Edges[0].Target)
	assert.Equal(t, 1, s.DroppedEdges)
	assert.Equal(t, "test", s.Metadata["source"])
}

func TestSnapshotIsDetached(t *testing.T) {
	m := sampleModel()
	s := NewSnapshot(m, nil)
	m.Nodes()[0].SetPosition(99, 99)
	*m.Nodes()[0].Cluster = 9

	assert.Equal(t, 10.5, s.Nodes[0].X)
	assert.Equal(t, 3, s.Nodes[0].ClusterID())
}

func TestEmptyModel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, graph.New(nil, nil), nil))
	assert.Contains(t, buf.String(), `"nodes": []`)
	assert.Contains(t, buf.String(), `"edges": []`)
}
