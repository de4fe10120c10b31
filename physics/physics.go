package physics

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
)

// Config holds the simulation tuning values. Zero fields take the defaults
// from DefaultConfig.
type Config struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`

	// Iterations is the target tick count for a settling run.
	Iterations int `json:"iterations" yaml:"iterations"`

	LinkDistance float64 `json:"link_distance" yaml:"link_distance"`

	// ChargeStrength is negative for repulsion.
	ChargeStrength    float64 `json:"charge_strength" yaml:"charge_strength"`
	ChargeDistanceMin float64 `json:"charge_distance_min" yaml:"charge_distance_min"`

	// Theta is the Barnes-Hut opening criterion, used once the node count
	// exceeds BarnesHutThreshold.
	Theta              float64 `json:"theta" yaml:"theta"`
	BarnesHutThreshold int     `json:"barnes_hut_threshold" yaml:"barnes_hut_threshold"`

	CenterStrength float64 `json:"center_strength" yaml:"center_strength"`
	AxisStrength   float64 `json:"axis_strength" yaml:"axis_strength"`
	VelocityDecay  float64 `json:"velocity_decay" yaml:"velocity_decay"`
	AlphaMin       float64 `json:"alpha_min" yaml:"alpha_min"`

	// Seed drives initial placement and tie-breaking. Zero picks a
	// time-based seed.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// DefaultConfig returns values that give stable, non-overlapping layouts for
// graphs in the hundreds of nodes.
func DefaultConfig() Config {
	return Config{
		Width:              800,
		Height:             600,
		Iterations:         100,
		LinkDistance:       60,
		ChargeStrength:     -120,
		ChargeDistanceMin:  1,
		Theta:              0.9,
		BarnesHutThreshold: 1000,
		CenterStrength:     1,
		AxisStrength:       0.05,
		VelocityDecay:      0.4,
		AlphaMin:           0.001,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.Iterations <= 0 {
		c.Iterations = d.Iterations
	}
	if c.LinkDistance <= 0 {
		c.LinkDistance = d.LinkDistance
	}
	if c.ChargeStrength == 0 {
		c.ChargeStrength = d.ChargeStrength
	}
	if c.ChargeDistanceMin <= 0 {
		c.ChargeDistanceMin = d.ChargeDistanceMin
	}
	if c.Theta <= 0 {
		c.Theta = d.Theta
	}
	if c.BarnesHutThreshold <= 0 {
		c.BarnesHutThreshold = d.BarnesHutThreshold
	}
	if c.CenterStrength <= 0 {
		c.CenterStrength = d.CenterStrength
	}
	if c.AxisStrength <= 0 {
		c.AxisStrength = d.AxisStrength
	}
	if c.VelocityDecay <= 0 || c.VelocityDecay >= 1 {
		c.VelocityDecay = d.VelocityDecay
	}
	if c.AlphaMin <= 0 || c.AlphaMin >= 1 {
		c.AlphaMin = d.AlphaMin
	}
	if c.Seed == 0 {
		c.Seed = uint64(time.Now().UnixNano())
	}
	return c
}

// Stats summarises a simulation run.
type Stats struct {
	Nodes        int           `json:"nodes"`
	Edges        int           `json:"edges"`
	Ticks        int           `json:"ticks"`
	Alpha        float64       `json:"alpha"`
	Converged    bool          `json:"converged"`
	Approximated bool          `json:"approximated"`
	Duration     time.Duration `json:"duration"`
}

// ForceDirectedLayout is a velocity-Verlet force simulation balancing link
// springs, many-body repulsion, mean centering and per-axis springs toward
// the canvas center.
//
// It mutates X/Y/VX/VY of the supplied nodes in array order, so identical
// inputs with the same seed produce identical positions.
type ForceDirectedLayout struct {
	cfg   Config
	nodes []*models.Node
	edges []graph.SimulationEdge

	rng     *rand.Rand
	noise   opensimplex.Noise
	jiggles int

	alpha      float64
	alphaDecay float64
	ticks      int

	linkStrength []float64
	linkBias     []float64
}

// NewForceDirectedLayout creates a simulation over nodes and edges. Edges
// whose indices fall outside nodes are ignored.
func NewForceDirectedLayout(nodes []*models.Node, edges []graph.SimulationEdge, cfg Config) *ForceDirectedLayout {
	cfg = cfg.withDefaults()
	fd := &ForceDirectedLayout{
		cfg:        cfg,
		nodes:      nodes,
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		noise:      opensimplex.New(int64(cfg.Seed)),
		alpha:      1,
		alphaDecay: 1 - math.Pow(cfg.AlphaMin, 1/float64(cfg.Iterations)),
	}

	counts := make([]int, len(nodes))
	fd.edges = make([]graph.SimulationEdge, 0, len(edges))
	for _, e := range edges {
		if e.SourceIndex < 0 || e.SourceIndex >= len(nodes) || e.TargetIndex < 0 || e.TargetIndex >= len(nodes) {
			continue
		}
		fd.edges = append(fd.edges, e)
		counts[e.SourceIndex]++
		counts[e.TargetIndex]++
	}

	fd.linkStrength = make([]float64, len(fd.edges))
	fd.linkBias = make([]float64, len(fd.edges))
	for i, e := range fd.edges {
		cs, ct := counts[e.SourceIndex], counts[e.TargetIndex]
		fd.linkStrength[i] = (0.1 + 0.9*models.ClampStrength(e.Strength)) / float64(min(cs, ct))
		fd.linkBias[i] = float64(cs) / float64(cs+ct)
	}

	return fd
}

// Initialize places every node at a random point inside the canvas and
// clears velocities.
func (fd *ForceDirectedLayout) Initialize() {
	for _, n := range fd.nodes {
		n.X = fd.rng.Float64() * fd.cfg.Width
		n.Y = fd.rng.Float64() * fd.cfg.Height
		n.VX, n.VY = 0, 0
	}
	fd.alpha = 1
	fd.ticks = 0
}

// Alpha returns the current cooling parameter.
func (fd *ForceDirectedLayout) Alpha() float64 { return fd.alpha }

// Ticks returns the number of ticks applied since Initialize.
func (fd *ForceDirectedLayout) Ticks() int { return fd.ticks }

// Approximated reports whether many-body forces use Barnes-Hut.
func (fd *ForceDirectedLayout) Approximated() bool {
	return len(fd.nodes) > fd.cfg.BarnesHutThreshold
}

// Step performs one tick. It returns true once the target iteration count
// has been reached.
func (fd *ForceDirectedLayout) Step() bool {
	if len(fd.nodes) == 0 || fd.ticks >= fd.cfg.Iterations {
		return true
	}

	fd.alpha += (0 - fd.alpha) * fd.alphaDecay

	fd.applyLinks()
	if fd.Approximated() {
		fd.applyChargeBarnesHut()
	} else {
		fd.applyChargePairwise()
	}
	fd.applyCenter()
	fd.applyAxis()

	decay := 1 - fd.cfg.VelocityDecay
	for _, n := range fd.nodes {
		n.VX *= decay
		n.VY *= decay
		n.X += n.VX
		n.Y += n.VY
	}

	fd.ticks++
	return fd.ticks >= fd.cfg.Iterations
}

// applyLinks pulls connected nodes toward LinkDistance.
func (fd *ForceDirectedLayout) applyLinks() {
	for i, e := range fd.edges {
		if e.SourceIndex == e.TargetIndex {
			continue
		}
		s, t := fd.nodes[e.SourceIndex], fd.nodes[e.TargetIndex]
		x := t.X + t.VX - s.X - s.VX
		y := t.Y + t.VY - s.Y - s.VY
		if x == 0 {
			x = fd.jiggle()
		}
		if y == 0 {
			y = fd.jiggle()
		}
		l := math.Sqrt(x*x + y*y)
		l = (l - fd.cfg.LinkDistance) / l * fd.alpha * fd.linkStrength[i]
		x *= l
		y *= l
		b := fd.linkBias[i]
		t.VX -= x * b
		t.VY -= y * b
		s.VX += x * (1 - b)
		s.VY += y * (1 - b)
	}
}

// applyChargePairwise is the exact O(n²) many-body force.
func (fd *ForceDirectedLayout) applyChargePairwise() {
	minDist2 := fd.cfg.ChargeDistanceMin * fd.cfg.ChargeDistanceMin
	strength := fd.cfg.ChargeStrength * fd.alpha
	for i := 0; i < len(fd.nodes); i++ {
		a := fd.nodes[i]
		for j := i + 1; j < len(fd.nodes); j++ {
			b := fd.nodes[j]
			dx := b.X - a.X
			dy := b.Y - a.Y
			w, ok := fd.chargeWeight(&dx, &dy, minDist2, strength)
			if !ok {
				continue
			}
			a.VX += dx * w
			a.VY += dy * w
			b.VX -= dx * w
			b.VY -= dy * w
		}
	}
}

// applyChargeBarnesHut approximates the many-body force with a quadtree.
func (fd *ForceDirectedLayout) applyChargeBarnesHut() {
	xs := make([]float64, len(fd.nodes))
	ys := make([]float64, len(fd.nodes))
	for i, n := range fd.nodes {
		xs[i], ys[i] = n.X, n.Y
	}
	tree := buildBarnesHutTree(xs, ys)
	if tree == nil {
		return
	}

	minDist2 := fd.cfg.ChargeDistanceMin * fd.cfg.ChargeDistanceMin
	strength := fd.cfg.ChargeStrength * fd.alpha
	theta2 := fd.cfg.Theta * fd.cfg.Theta
	for i, n := range fd.nodes {
		fx, fy := tree.force(i, xs[i], ys[i], theta2, func(dx, dy, mass float64) (float64, float64) {
			w, ok := fd.chargeWeight(&dx, &dy, minDist2, strength*mass)
			if !ok {
				return 0, 0
			}
			return dx * w, dy * w
		})
		n.VX += fx
		n.VY += fy
	}
}

// chargeWeight returns the velocity scale for a pair separated by (dx, dy).
// Coincident pairs are separated by a deterministic jiggle and distances are
// floored at ChargeDistanceMin so the result is always finite.
func (fd *ForceDirectedLayout) chargeWeight(dx, dy *float64, minDist2, strength float64) (float64, bool) {
	if *dx == 0 {
		*dx = fd.jiggle()
	}
	if *dy == 0 {
		*dy = fd.jiggle()
	}
	l2 := *dx**dx + *dy**dy
	if l2 < minDist2 {
		l2 = math.Sqrt(minDist2 * l2)
	}
	if l2 == 0 || math.IsNaN(l2) || math.IsInf(l2, 0) {
		return 0, false
	}
	return strength / l2, true
}

// applyCenter translates the whole layout so its mean sits on the canvas
// center.
func (fd *ForceDirectedLayout) applyCenter() {
	var sx, sy float64
	for _, n := range fd.nodes {
		sx += n.X
		sy += n.Y
	}
	count := float64(len(fd.nodes))
	sx = (sx/count - fd.cfg.Width/2) * fd.cfg.CenterStrength
	sy = (sy/count - fd.cfg.Height/2) * fd.cfg.CenterStrength
	for _, n := range fd.nodes {
		n.X -= sx
		n.Y -= sy
	}
}

// applyAxis pulls each node independently toward the center coordinates.
func (fd *ForceDirectedLayout) applyAxis() {
	cx, cy := fd.cfg.Width/2, fd.cfg.Height/2
	k := fd.cfg.AxisStrength * fd.alpha
	for _, n := range fd.nodes {
		n.VX += (cx - n.X) * k
		n.VY += (cy - n.Y) * k
	}
}

// jiggle returns a tiny non-zero offset drawn from simplex noise, so it is
// reproducible for a given seed.
func (fd *ForceDirectedLayout) jiggle() float64 {
	fd.jiggles++
	v := fd.noise.Eval2(float64(fd.jiggles)*0.731+0.5, 0.37) * 1e-6
	if v == 0 || math.IsNaN(v) {
		return 1e-6
	}
	return v
}

// Run initializes the nodes and ticks until the target iteration count is
// reached or ctx is cancelled. On cancellation the partial stats and the
// context error are returned.
func (fd *ForceDirectedLayout) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	stats := Stats{Nodes: len(fd.nodes), Edges: len(fd.edges), Approximated: fd.Approximated()}
	if len(fd.nodes) == 0 {
		return stats, nil
	}

	fd.Initialize()
	for !fd.Step() {
		if err := ctx.Err(); err != nil {
			stats.Ticks, stats.Alpha, stats.Duration = fd.ticks, fd.alpha, time.Since(start)
			return stats, err
		}
	}

	stats.Ticks = fd.ticks
	stats.Alpha = fd.alpha
	stats.Converged = fd.alpha <= fd.cfg.AlphaMin*1.0001
	stats.Duration = time.Since(start)
	return stats, nil
}

// Layout runs a synchronous simulation on the calling goroutine. Zero nodes
// is a no-op.
func Layout(ctx context.Context, nodes []*models.Node, edges []graph.SimulationEdge, cfg Config) (Stats, error) {
	return NewForceDirectedLayout(nodes, edges, cfg).Run(ctx)
}
