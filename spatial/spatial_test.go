package spatial

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
)

func grid(n int, step float64) []*models.Node {
	nodes := make([]*models.Node, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			nodes = append(nodes, &models.Node{ID: fmt.Sprintf("%d-%d", x, y), X: float64(x) * step, Y: float64(y) * step})
		}
	}
	return nodes
}

func chain(nodes []*models.Node) []graph.SimulationEdge {
	edges := make([]graph.SimulationEdge, 0, len(nodes))
	for i := 1; i < len(nodes); i++ {
		edges = append(edges, graph.SimulationEdge{Source: nodes[i-1], Target: nodes[i], SourceIndex: i - 1, TargetIndex: i, Strength: 0.5})
	}
	return edges
}

func TestQueryBordersInclusive(t *testing.T) {
	nodes := grid(10, 10)
	q := BuildFromNodes(nodes)
	require.Equal(t, 100, q.Len())

	idx := q.Query(models.Bounds{Left: 10, Right: 20, Top: 10, Bottom: 20})
	assert.Equal(t, []int{11, 12, 21, 22}, idx)
}

func TestQueryEmptyAndNonFinite(t *testing.T) {
	assert.Empty(t, Build(nil).Query(models.Bounds{Left: -1, Right: 1, Top: -1, Bottom: 1}))

	q := Build([]models.Point{{X: math.NaN(), Y: 0}, {X: 0, Y: 0}, {X: math.Inf(1), Y: 0}})
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, []int{1}, q.Query(models.Bounds{Left: -1e308, Right: 1e308, Top: -1, Bottom: 1}))
}

func TestQueryDuplicatePointsTerminates(t *testing.T) {
	pts := make([]models.Point, 500)
	for i := range pts {
		pts[i] = models.Point{X: 3, Y: 3}
	}
	q := Build(pts)
	assert.Len(t, q.Query(models.Bounds{Left: 3, Right: 3, Top: 3, Bottom: 3}), 500)
}

func TestAllPassesEverything(t *testing.T) {
	nodes := grid(5, 100)
	edges := chain(nodes)
	require.False(t, IsLarge(len(nodes), 1000))
	v := All(nodes, edges)
	assert.Len(t, v.Nodes, len(nodes))
	assert.Len(t, v.Edges, len(edges))
	assert.False(t, v.Culled)
	assert.False(t, v.Indexed)
}

func TestSelectDropsPartialEdges(t *testing.T) {
	nodes := grid(5, 100)
	edges := chain(nodes)
	require.True(t, IsLarge(len(nodes), 10))
	v := Select(nodes, edges, models.Bounds{Left: 0, Right: 150, Top: 0, Bottom: 0}, BuildFromNodes(nodes))

	require.True(t, v.Indexed)
	require.Len(t, v.Nodes, 2)
	require.Len(t, v.Edges, 1)
	assert.Equal(t, "0-0", v.Edges[0].Source.ID)
	assert.Equal(t, "1-0", v.Edges[0].Target.ID)
}

func TestSelectZeroNodes(t *testing.T) {
	v := Select(nil, nil, models.Bounds{}, BuildFromNodes(nil))
	assert.Empty(t, v.Nodes)
	assert.Empty(t, v.Edges)
	v = All(nil, nil)
	assert.Empty(t, v.Nodes)
	assert.Empty(t, v.Edges)
}

func TestIsLarge(t *testing.T) {
	assert.False(t, IsLarge(10000, 0))
	assert.True(t, IsLarge(10001, 0))
	assert.True(t, IsLarge(15000, DefaultThreshold))
}

func TestIndexWorkerBuildsIndex(t *testing.T) {
	w := NewIndexWorker()
	defer w.Terminate()

	nodes := grid(4, 1)
	_, err := w.Submit(IndexRequest{ModelID: "m", Points: Positions(nodes)})
	require.NoError(t, err)

	select {
	case r := <-w.Results():
		require.NoError(t, r.Err)
		require.True(t, w.Accept(r))
		assert.Equal(t, "m", r.Value.ModelID)
		assert.Equal(t, 16, r.Value.Index.Len())
		v := Select(nodes, nil, models.Bounds{Left: 0, Right: 1, Top: 0, Bottom: 1}, r.Value.Index)
		assert.True(t, v.Indexed)
		assert.Len(t, v.Nodes, 4)
	case <-time.After(5 * time.Second):
		t.Fatal("index worker did not respond")
	}
}

func TestCullingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	coords := gen.SliceOfN(200, gen.Float64Range(-1000, 1000))
	box := gen.Float64Range(-500, 500)

	build := func(xs, ys []float64) ([]*models.Node, []graph.SimulationEdge) {
		nodes := make([]*models.Node, len(xs))
		for i := range xs {
			nodes[i] = &models.Node{ID: fmt.Sprint(i), X: xs[i], Y: ys[i]}
		}
		edges := make([]graph.SimulationEdge, 0, len(nodes))
		for i := range nodes {
			j := (i * 7) % len(nodes)
			edges = append(edges, graph.SimulationEdge{Source: nodes[i], Target: nodes[j], SourceIndex: i, TargetIndex: j})
		}
		return nodes, edges
	}

	properties.Property("nodes inside bounds are visible, nodes outside are not", prop.ForAll(
		func(xs, ys []float64, left, top float64) bool {
			nodes, edges := build(xs, ys)
			b := models.Bounds{Left: left, Right: left + 400, Top: top, Bottom: top + 300}
			v := Select(nodes, edges, b, BuildFromNodes(nodes))
			seen := make(map[*models.Node]bool, len(v.Nodes))
			for _, n := range v.Nodes {
				seen[n] = true
			}
			for _, n := range nodes {
				if b.Contains(n.Position()) != seen[n] {
					return false
				}
			}
			return true
		},
		coords, coords, box, box,
	))

	properties.Property("edge visible iff both endpoints visible", prop.ForAll(
		func(xs, ys []float64, left, top float64) bool {
			nodes, edges := build(xs, ys)
			b := models.Bounds{Left: left, Right: left + 600, Top: top, Bottom: top + 600}
			v := Select(nodes, edges, b, BuildFromNodes(nodes))
			seen := make(map[*models.Node]bool, len(v.Nodes))
			for _, n := range v.Nodes {
				seen[n] = true
			}
			count := 0
			for _, e := range edges {
				if seen[e.Source] && seen[e.Target] {
					count++
				}
			}
			if count != len(v.Edges) {
				return false
			}
			for _, e := range v.Edges {
				if !seen[e.Source] || !seen[e.Target] {
					return false
				}
			}
			return true
		},
		coords, coords, box, box,
	))

	properties.Property("quadtree agrees with linear scan and is repeatable", prop.ForAll(
		func(xs, ys []float64, left, top float64) bool {
			nodes, edges := build(xs, ys)
			b := models.Bounds{Left: left, Right: left + 250, Top: top, Bottom: top + 250}
			index := BuildFromNodes(nodes)
			indexed := Select(nodes, edges, b, index)
			again := Select(nodes, edges, b, index)
			linear := Select(nodes, edges, b, nil)
			if len(indexed.Nodes) != len(linear.Nodes) || len(indexed.Edges) != len(linear.Edges) {
				return false
			}
			for i := range indexed.Nodes {
				if indexed.Nodes[i] != linear.Nodes[i] || indexed.Nodes[i] != again.Nodes[i] {
					return false
				}
			}
			return true
		},
		coords, coords, box, box,
	))

	properties.TestingRun(t)
}
