package physics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
)

func threeNodeModel() *graph.Model {
	return graph.New(
		[]models.Node{models.NewNode("A", ""), models.NewNode("B", ""), models.NewNode("C", "")},
		[]models.Edge{models.NewEdge("A", "B", 0.5), models.NewEdge("B", "C", 0.9)},
	)
}

func assertFinite(t *testing.T, nodes []*models.Node) {
	t.Helper()
	for _, n := range nodes {
		for _, v := range []float64{n.X, n.Y, n.VX, n.VY} {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "node %s has non-finite state", n.ID)
		}
	}
}

func TestLayoutThreeNodesStaysOnCanvas(t *testing.T) {
	m := threeNodeModel()
	cfg := DefaultConfig()
	cfg.Seed = 7

	stats, err := Layout(context.Background(), m.Nodes(), m.SimulationEdges(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 100, stats.Ticks)
	assert.True(t, stats.Converged)
	assert.False(t, stats.Approximated)

	assertFinite(t, m.Nodes())
	for _, n := range m.Nodes() {
		assert.GreaterOrEqual(t, n.X, -50.0)
		assert.LessOrEqual(t, n.X, 850.0)
		assert.GreaterOrEqual(t, n.Y, -50.0)
		assert.LessOrEqual(t, n.Y, 650.0)
	}
}

func TestLayoutZeroNodesIsNoop(t *testing.T) {
	stats, err := Layout(context.Background(), nil, nil, DefaultConfig())
	require.NoError(t, err)
	assert.Zero(t, stats.Ticks)
	assert.Zero(t, stats.Nodes)
}

func TestStepCoincidentNodesStayFinite(t *testing.T) {
	nodes := []*models.Node{
		{ID: "a", X: 100, Y: 100},
		{ID: "b", X: 100, Y: 100},
		{ID: "c", X: 100, Y: 100},
	}
	edges := []graph.SimulationEdge{{Source: nodes[0], Target: nodes[1], SourceIndex: 0, TargetIndex: 1, Strength: 1}}
	fd := NewForceDirectedLayout(nodes, edges, Config{Seed: 3})

	fd.Step()
	assertFinite(t, nodes)
	assert.False(t, nodes[0].X == nodes[1].X && nodes[0].Y == nodes[1].Y, "coincident nodes should separate")
}

func TestBarnesHutCoincidentNodesTerminate(t *testing.T) {
	nodes := make([]*models.Node, 1200)
	for i := range nodes {
		nodes[i] = &models.Node{ID: string(rune('a' + i%26)), X: 5, Y: 5}
	}
	fd := NewForceDirectedLayout(nodes, nil, Config{Seed: 11})
	require.True(t, fd.Approximated())

	fd.Step()
	assertFinite(t, nodes)
}

func TestLayoutIsDeterministicForSeed(t *testing.T) {
	a, b := threeNodeModel(), threeNodeModel()
	cfg := DefaultConfig()
	cfg.Seed = 42

	_, err := Layout(context.Background(), a.Nodes(), a.SimulationEdges(), cfg)
	require.NoError(t, err)
	_, err = Layout(context.Background(), b.Nodes(), b.SimulationEdges(), cfg)
	require.NoError(t, err)

	for i := range a.Nodes() {
		assert.InDelta(t, a.Nodes()[i].X, b.Nodes()[i].X, 1e-9)
		assert.InDelta(t, a.Nodes()[i].Y, b.Nodes()[i].Y, 1e-9)
	}
}

func TestIsolatedNodeIsCentered(t *testing.T) {
	nodes := []*models.Node{{ID: "solo"}}
	_, err := Layout(context.Background(), nodes, nil, Config{Seed: 1})
	require.NoError(t, err)
	assert.InDelta(t, 400, nodes[0].X, 1e-6)
	assert.InDelta(t, 300, nodes[0].Y, 1e-6)
}

func TestLayoutHonoursCancellation(t *testing.T) {
	m := threeNodeModel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := Layout(ctx, m.Nodes(), m.SimulationEdges(), Config{Seed: 1, Iterations: 500})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, stats.Ticks, 500)
}

func TestComputeMatchesSynchronousLayout(t *testing.T) {
	sync, off := threeNodeModel(), threeNodeModel()
	cfg := DefaultConfig()
	cfg.Seed = 99

	_, err := Layout(context.Background(), sync.Nodes(), sync.SimulationEdges(), cfg)
	require.NoError(t, err)

	resp, err := Compute(context.Background(), NewRequest(off.ID(), off.Nodes(), off.SimulationEdges(), cfg))
	require.NoError(t, err)
	require.NoError(t, resp.ApplyTo(off.Nodes()))

	for i := range sync.Nodes() {
		assert.InDelta(t, sync.Nodes()[i].X, off.Nodes()[i].X, 1e-9)
		assert.InDelta(t, sync.Nodes()[i].Y, off.Nodes()[i].Y, 1e-9)
	}
}

func TestApplyToRejectsMismatch(t *testing.T) {
	m := threeNodeModel()
	resp := Response{Positions: []NodeState{{ID: "A"}}}
	assert.ErrorIs(t, resp.ApplyTo(m.Nodes()), ErrResultMismatch)

	resp = Response{Positions: []NodeState{{ID: "A"}, {ID: "C"}, {ID: "B"}}}
	assert.ErrorIs(t, resp.ApplyTo(m.Nodes()), ErrResultMismatch)
}

func TestLayoutWorkerRoundTrip(t *testing.T) {
	w := NewLayoutWorker(nil)
	defer w.Terminate()

	m := threeNodeModel()
	cfg := DefaultConfig()
	cfg.Seed = 5
	gen, err := w.Submit(NewRequest(m.ID(), m.Nodes(), m.SimulationEdges(), cfg))
	require.NoError(t, err)

	select {
	case r := <-w.Results():
		require.NoError(t, r.Err)
		assert.Equal(t, gen, r.Generation)
		require.True(t, w.Accept(r))
		require.NoError(t, r.Value.ApplyTo(m.Nodes()))
		assert.Equal(t, m.ID(), r.Value.ModelID)
		assertFinite(t, m.Nodes())
	case <-time.After(5 * time.Second):
		t.Fatal("layout worker did not respond")
	}
}
