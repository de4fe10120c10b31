package physics

import (
	"context"
	"errors"
	"fmt"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
	"github.com/TFMV/graphview/worker"
)

// ErrResultMismatch is returned when a response cannot be applied to the
// node set it is offered to.
var ErrResultMismatch = errors.New("layout result does not match node set")

// NodeState is the plain, reference-free form of a node sent to the layout
// worker.
type NodeState struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// EdgeRef references nodes by index into Request.Nodes.
type EdgeRef struct {
	Source   int     `json:"source"`
	Target   int     `json:"target"`
	Strength float64 `json:"strength"`
}

// Request is a self-contained layout job. It shares no memory with the
// caller's model.
type Request struct {
	ModelID string      `json:"model_id"`
	Nodes   []NodeState `json:"nodes"`
	Edges   []EdgeRef   `json:"edges"`
	Config  Config      `json:"config"`
}

// Response carries positions in request order.
type Response struct {
	ModelID   string      `json:"model_id"`
	Positions []NodeState `json:"positions"`
	Stats     Stats       `json:"stats"`
}

// NewRequest snapshots nodes and edges into a Request.
func NewRequest(modelID string, nodes []*models.Node, edges []graph.SimulationEdge, cfg Config) Request {
	req := Request{
		ModelID: modelID,
		Nodes:   make([]NodeState, len(nodes)),
		Edges:   make([]EdgeRef, len(edges)),
		Config:  cfg,
	}
	for i, n := range nodes {
		req.Nodes[i] = NodeState{ID: n.ID, X: n.X, Y: n.Y, VX: n.VX, VY: n.VY}
	}
	for i, e := range edges {
		req.Edges[i] = EdgeRef{Source: e.SourceIndex, Target: e.TargetIndex, Strength: e.Strength}
	}
	return req
}

// Compute runs the simulation over a private copy of the request data.
func Compute(ctx context.Context, req Request) (Response, error) {
	nodes := make([]*models.Node, len(req.Nodes))
	for i, s := range req.Nodes {
		nodes[i] = &models.Node{ID: s.ID, Label: s.ID, X: s.X, Y: s.Y, VX: s.VX, VY: s.VY}
	}
	edges := make([]graph.SimulationEdge, 0, len(req.Edges))
	for _, e := range req.Edges {
		if e.Source < 0 || e.Source >= len(nodes) || e.Target < 0 || e.Target >= len(nodes) {
			continue
		}
		edges = append(edges, graph.SimulationEdge{
			Source:      nodes[e.Source],
			Target:      nodes[e.Target],
			SourceIndex: e.Source,
			TargetIndex: e.Target,
			Strength:    e.Strength,
		})
	}

	stats, err := Layout(ctx, nodes, edges, req.Config)
	if err != nil {
		return Response{}, err
	}

	resp := Response{ModelID: req.ModelID, Positions: make([]NodeState, len(nodes)), Stats: stats}
	for i, n := range nodes {
		resp.Positions[i] = NodeState{ID: n.ID, X: n.X, Y: n.Y, VX: n.VX, VY: n.VY}
	}
	return resp, nil
}

// ApplyTo copies positions onto nodes. The node ids must match the request
// order exactly.
func (r Response) ApplyTo(nodes []*models.Node) error {
	if len(r.Positions) != len(nodes) {
		return fmt.Errorf("%w: %d positions for %d nodes", ErrResultMismatch, len(r.Positions), len(nodes))
	}
	for i, p := range r.Positions {
		if nodes[i].ID != p.ID {
			return fmt.Errorf("%w: position %d is %q, node is %q", ErrResultMismatch, i, p.ID, nodes[i].ID)
		}
	}
	for i, p := range r.Positions {
		n := nodes[i]
		n.X, n.Y, n.VX, n.VY = p.X, p.Y, p.VX, p.VY
	}
	return nil
}

// NewLayoutWorker returns a single-slot worker running job, or Compute when
// job is nil.
func NewLayoutWorker(job worker.Job[Request, Response], opts ...worker.Option) *worker.Slot[Request, Response] {
	if job == nil {
		job = Compute
	}
	return worker.New("layout", job, opts...)
}
