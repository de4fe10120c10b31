package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/metrics"
	"github.com/TFMV/graphview/models"
	"github.com/TFMV/graphview/physics"
	"github.com/TFMV/graphview/render"
	"github.com/TFMV/graphview/session"
	"github.com/TFMV/graphview/view"
)

var gpuCapable = render.Capability{GPUContext: true, Extensions: []string{render.ExtInstancedArrays}}

func triangle() ([]models.Node, []models.Edge) {
	return []models.Node{models.NewNode("A", ""), models.NewNode("B", ""), models.NewNode("C", "")},
		[]models.Edge{models.NewEdge("A", "B", 0.5), models.NewEdge("B", "C", 0.9), models.NewEdge("C", "ghost", 1)}
}

func manyNodes(n int) []models.Node {
	nodes := make([]models.Node, n)
	for i := range nodes {
		nodes[i] = models.NewNode(fmt.Sprintf("n%d", i), fmt.Sprintf("node %d", i))
	}
	return nodes
}

func seeded(iterations int) physics.Config {
	cfg := physics.DefaultConfig()
	cfg.Seed = 1
	cfg.Iterations = iterations
	return cfg
}

type reports struct {
	mu  sync.Mutex
	all []MetricsReport
}

func (r *reports) add(m MetricsReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, m)
}

func (r *reports) last() MetricsReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all[len(r.all)-1]
}

func TestMountSynchronous(t *testing.T) {
	nodes, edges := triangle()
	rep := &reports{}
	v, err := Mount(context.Background(), nodes, edges, 800, 600, Options{
		Layout:          seeded(100),
		OnMetricsReport: rep.add,
		Metrics:         metrics.NewRegistry(),
	})
	require.NoError(t, err)
	defer v.Unmount()

	last := rep.last()
	assert.Equal(t, 3, last.TotalNodes)
	assert.Equal(t, 2, last.TotalEdges)
	assert.Equal(t, 3, last.VisibleNodes)
	assert.False(t, last.IsLargeDataset)
	assert.Equal(t, 1.0, last.ZoomLevel)

	for _, n := range v.Model().Nodes() {
		assert.True(t, n.IsFinite())
	}

	out, err := v.RenderFrame()
	require.NoError(t, err)
	assert.Equal(t, render.ModeVector, out.Mode)
	assert.Equal(t, "image/svg+xml", out.ContentType)
	svg := string(out.Body)
	assert.Equal(t, 3, strings.Count(svg, "<circle"))
	assert.Equal(t, 2, strings.Count(svg, "<line"))
	assert.NotContains(t, svg, "ghost")
}

func TestZeroNodesRenderOnBothBackends(t *testing.T) {
	v, err := Mount(context.Background(), nil, nil, 800, 600, Options{Capability: gpuCapable})
	require.NoError(t, err)
	defer v.Unmount()

	assert.Empty(t, v.Visible().Nodes)
	out, err := v.RenderFrame()
	require.NoError(t, err)
	assert.NotContains(t, string(out.Body), "<circle")

	require.NoError(t, v.SetRenderMode(context.Background(), render.ModeGPU))
	out, err = v.RenderFrame()
	require.NoError(t, err)
	assert.Equal(t, render.ModeGPU, out.Mode)
}

func TestLargeDatasetScenario(t *testing.T) {
	v, err := Mount(context.Background(), manyNodes(15000), nil, 800, 600, Options{Layout: seeded(1)})
	require.NoError(t, err)
	defer v.Unmount()

	d := v.Decision()
	assert.True(t, d.LargeDataset)
	assert.Equal(t, render.ModeVector, d.Mode)
	assert.True(t, v.Visible().Indexed)
	assert.True(t, v.Report().IsLargeDataset)

	require.NoError(t, v.Wheel(400, 300, -1000))
	rep := v.Report()
	assert.Greater(t, rep.VisibleNodes, 0)
	assert.Less(t, rep.VisibleNodes, rep.TotalNodes)

	target := v.Visible().Nodes[0]
	screen := v.Transform().WorldToScreen(target.Position())
	require.NoError(t, v.PointerMove(screen.X, screen.Y))
	hovered, _ := v.Selection()
	require.NotEmpty(t, hovered)

	out, err := v.RenderFrame()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(out.Body), "<text"))
}

func TestOffloadedLayout(t *testing.T) {
	nodes, edges := triangle()
	var (
		mu    sync.Mutex
		stats []physics.Stats
	)
	v, err := Mount(context.Background(), nodes, edges, 800, 600, Options{
		Offload: true,
		Layout:  seeded(100),
		OnLayoutComplete: func(s physics.Stats) {
			mu.Lock()
			defer mu.Unlock()
			stats = append(stats, s)
		},
	})
	require.NoError(t, err)
	defer v.Unmount()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := v.WaitLayout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Ticks)

	for _, n := range v.Model().Nodes() {
		assert.True(t, n.IsFinite())
		assert.InDelta(t, 400, n.X, 450)
	}

	mu.Lock()
	assert.Len(t, stats, 1)
	mu.Unlock()

	v.mu.Lock()
	assert.NotNil(t, v.layoutWorker)
	v.mu.Unlock()

	v.SetOffload(false)
	v.mu.Lock()
	assert.Nil(t, v.layoutWorker)
	v.mu.Unlock()
}

func TestDisablingOffloadMidLayoutFinishesSynchronously(t *testing.T) {
	reg := metrics.NewRegistry()
	var layouts atomic.Int32
	v, err := Mount(context.Background(), manyNodes(200), nil, 800, 600, Options{
		Offload:          true,
		Layout:           seeded(2000),
		Metrics:          reg,
		OnLayoutComplete: func(physics.Stats) { layouts.Add(1) },
	})
	require.NoError(t, err)
	defer v.Unmount()

	v.SetOffload(false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	s, err := v.WaitLayout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2000, s.Ticks)
	assert.EqualValues(t, 1, layouts.Load())

	placed := 0
	require.NoError(t, v.View(func(m *graph.Model) error {
		for _, n := range m.Nodes() {
			assert.True(t, n.IsFinite())
			if n.X != 0 || n.Y != 0 {
				placed++
			}
		}
		return nil
	}))
	assert.Equal(t, 200, placed)

	v.mu.Lock()
	assert.Nil(t, v.layoutWorker)
	v.mu.Unlock()
}

func TestLayoutWorkerFailureFallsBackToSync(t *testing.T) {
	reg := metrics.NewRegistry()
	var layouts, calls atomic.Int32
	nodes, edges := triangle()
	v, err := Mount(context.Background(), nodes, edges, 800, 600, Options{
		Layout:           seeded(50),
		Metrics:          reg,
		OnLayoutComplete: func(physics.Stats) { layouts.Add(1) },
	})
	require.NoError(t, err)
	defer v.Unmount()
	require.EqualValues(t, 1, layouts.Load())

	v.mu.Lock()
	v.layoutJob = func(ctx context.Context, req physics.Request) (physics.Response, error) {
		calls.Add(1)
		return physics.Response{}, errors.New("worker crashed")
	}
	v.mu.Unlock()
	v.SetOffload(true)

	wait := func() physics.Stats {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s, err := v.WaitLayout(ctx)
		require.NoError(t, err)
		return s
	}
	finite := func() {
		require.NoError(t, v.View(func(m *graph.Model) error {
			for _, n := range m.Nodes() {
				assert.True(t, n.IsFinite())
			}
			return nil
		}))
	}

	// The job fails after submission.
	require.NoError(t, v.Relayout(context.Background()))
	assert.Equal(t, 50, wait().Ticks)
	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 2, layouts.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.WorkerFallbacksTotal))
	finite()

	// Submission itself is refused.
	dead := physics.NewLayoutWorker(nil)
	dead.Terminate()
	v.mu.Lock()
	v.layoutWorker.Terminate()
	v.layoutWorker = dead
	v.mu.Unlock()

	require.NoError(t, v.Relayout(context.Background()))
	assert.Equal(t, 50, wait().Ticks)
	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 3, layouts.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.WorkerFallbacksTotal))
	finite()
}

func TestLoadReplacesModelAndDiscardsPendingLayout(t *testing.T) {
	v, err := Mount(context.Background(), manyNodes(300), nil, 800, 600, Options{Offload: true, Layout: seeded(300)})
	require.NoError(t, err)
	defer v.Unmount()
	first := v.Model().ID()

	nodes, edges := triangle()
	require.NoError(t, v.Load(context.Background(), nodes, edges, 0))
	second := v.Model().ID()
	assert.NotEqual(t, first, second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = v.WaitLayout(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, v.Model().ID())
	assert.Equal(t, 3, v.Report().TotalNodes)
}

func TestUnmountStopsEverything(t *testing.T) {
	v, err := Mount(context.Background(), manyNodes(500), nil, 800, 600, Options{Offload: true, Layout: seeded(500)})
	require.NoError(t, err)
	v.Unmount()
	v.Unmount()

	_, err = v.RenderFrame()
	assert.ErrorIs(t, err, ErrUnmounted)
	assert.ErrorIs(t, v.Wheel(0, 0, -10), ErrUnmounted)
	assert.ErrorIs(t, v.Load(context.Background(), nil, nil, 0), ErrUnmounted)
}

func TestRenderPanicBecomesRenderError(t *testing.T) {
	nodes, edges := triangle()
	reg := metrics.NewRegistry()
	v, err := Mount(context.Background(), nodes, edges, 800, 600, Options{Layout: seeded(10), Metrics: reg})
	require.NoError(t, err)
	defer v.Unmount()

	calls := 0
	v.paint = func(render.RenderMode, *render.Frame) ([]byte, error) {
		calls++
		panic("paint exploded")
	}

	_, err = v.RenderFrame()
	require.Error(t, err)
	re, ok := IsRenderError(err)
	require.True(t, ok)
	assert.True(t, re.Recoverable)
	assert.True(t, errors.Is(err, ErrRenderPanic))
	assert.Equal(t, 1, calls, "render must not retry")

	v.paint = func(render.RenderMode, *render.Frame) ([]byte, error) {
		return nil, errors.New("device lost")
	}
	_, err = v.RenderFrame()
	_, ok = IsRenderError(err)
	assert.True(t, ok)
}

func TestGPURequestRefusedWhenLocked(t *testing.T) {
	nodes, edges := triangle()
	v, err := Mount(context.Background(), nodes, edges, 800, 600, Options{
		Layout:     seeded(10),
		Escalation: session.EscalationConfig{ForceGPU: true},
		DataBytes:  1 << 40,
	})
	require.NoError(t, err)
	defer v.Unmount()

	assert.ErrorIs(t, v.SetRenderMode(context.Background(), render.ModeGPU), render.ErrGPUUnavailable)
	assert.ErrorIs(t, v.AcceptEscalation(), render.ErrGPUUnavailable)
	d := v.Decision()
	assert.Equal(t, render.ModeVector, d.Mode)
	assert.True(t, d.Locked)
	assert.False(t, d.PromptEscalation)
}

func TestOverridePersistsAcrossMounts(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	nodes, edges := triangle()
	opts := Options{SessionID: "s1", Store: store, Capability: gpuCapable, Layout: seeded(10)}

	v, err := Mount(context.Background(), nodes, edges, 800, 600, opts)
	require.NoError(t, err)
	require.NoError(t, v.SetRenderMode(context.Background(), render.ModeGPU))
	v.Unmount()

	v, err = Mount(context.Background(), nodes, edges, 800, 600, opts)
	require.NoError(t, err)
	defer v.Unmount()
	d := v.Decision()
	assert.Equal(t, render.ModeGPU, d.Mode)
	assert.Equal(t, render.SourceOverride, d.Source)

	require.NoError(t, v.ClearRenderMode(context.Background()))
	assert.Equal(t, render.ModeVector, v.Decision().Mode)
}

func TestEscalationPromptRequiresConfirmation(t *testing.T) {
	nodes, edges := triangle()
	v, err := Mount(context.Background(), nodes, edges, 800, 600, Options{
		Capability: gpuCapable,
		Layout:     seeded(10),
		DataBytes:  200 << 20,
	})
	require.NoError(t, err)
	defer v.Unmount()

	d := v.Decision()
	assert.True(t, d.PromptEscalation)
	assert.Equal(t, render.ModeVector, d.Mode)

	require.NoError(t, v.AcceptEscalation())
	assert.Equal(t, render.ModeGPU, v.Decision().Mode)

	out, err := v.RenderFrame()
	require.NoError(t, err)
	assert.Contains(t, out.ContentType, "text/html")
}

func TestClickSelectsNodeInVectorMode(t *testing.T) {
	nodes, edges := triangle()
	var (
		mu       sync.Mutex
		selected []*models.Node
	)
	v, err := Mount(context.Background(), nodes, edges, 800, 600, Options{
		Capability: gpuCapable,
		Layout:     seeded(100),
		OnNodeSelect: func(n *models.Node) {
			mu.Lock()
			defer mu.Unlock()
			selected = append(selected, n)
		},
	})
	require.NoError(t, err)
	defer v.Unmount()

	a, _ := v.Model().Lookup("A")
	p := v.Transform().WorldToScreen(a.Position())
	require.NoError(t, v.PointerDown(p.X, p.Y, view.ButtonPrimary))
	require.NoError(t, v.PointerUp(p.X+1, p.Y))

	_, sel := v.Selection()
	assert.Equal(t, "A", sel)

	// Switching backend discards the selection.
	require.NoError(t, v.SetRenderMode(context.Background(), render.ModeGPU))
	_, sel = v.Selection()
	assert.Empty(t, sel)
	assert.Error(t, v.Select("A"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, selected, 2)
	assert.Equal(t, "A", selected[0].ID)
	assert.Nil(t, selected[1])
}

func TestDragPansWithoutSelecting(t *testing.T) {
	nodes, edges := triangle()
	v, err := Mount(context.Background(), nodes, edges, 800, 600, Options{Layout: seeded(10)})
	require.NoError(t, err)
	defer v.Unmount()

	require.NoError(t, v.PointerDown(100, 100, view.ButtonPrimary))
	require.NoError(t, v.PointerMove(150, 120))
	require.NoError(t, v.PointerUp(150, 120))

	tr := v.Transform()
	assert.Equal(t, 50.0, tr.TranslateX)
	assert.Equal(t, 20.0, tr.TranslateY)
	_, sel := v.Selection()
	assert.Empty(t, sel)
}

func TestGPULargeDatasetUsesIndexWorker(t *testing.T) {
	v, err := Mount(context.Background(), manyNodes(50), nil, 800, 600, Options{
		Capability:     gpuCapable,
		Escalation:     session.EscalationConfig{ForceGPU: true},
		LargeThreshold: 10,
		Layout:         seeded(5),
	})
	require.NoError(t, err)
	defer v.Unmount()

	assert.Equal(t, render.ModeGPU, v.Decision().Mode)
	require.Eventually(t, func() bool { return v.Visible().Indexed }, 5*time.Second, 10*time.Millisecond)

	v.mu.Lock()
	assert.NotNil(t, v.indexWorker)
	v.mu.Unlock()
}

func TestViewHelpers(t *testing.T) {
	nodes, edges := triangle()
	v, err := Mount(context.Background(), nodes, edges, 800, 600, Options{Layout: seeded(50)})
	require.NoError(t, err)
	defer v.Unmount()

	require.NoError(t, v.FocusNode("B"))
	b, _ := v.Model().Lookup("B")
	p := v.Transform().WorldToScreen(b.Position())
	assert.InDelta(t, 400, p.X, 1e-6)
	assert.InDelta(t, 300, p.Y, 1e-6)

	assert.ErrorIs(t, v.FocusNode("nope"), ErrNodeNotFound)
	require.NoError(t, v.FitToView())
	require.NoError(t, v.ResetView())
	assert.Equal(t, view.Identity(), v.Transform())
	assert.Error(t, v.Resize(0, 10))
	require.NoError(t, v.Resize(1024, 768))
}
