// Package render draws the visible subset of a graph through one of two
// backends: a vector (SVG) path with per-node styling and hit-testing, and a
// GPU (WebGL point sprite) path that scales to large node counts.
package render

import (
	"fmt"

	"github.com/TFMV/graphview/graph"
	"github.com/TFMV/graphview/models"
	"github.com/TFMV/graphview/view"
)

// OutputOptions defines rendering configuration options
type OutputOptions struct {
	Background string  // Background color
	MinRadius  float64 // Radius of a node with zero degree
	MaxRadius  float64 // Upper bound for hub nodes
	EdgeWidth  float64 // Width of a full-strength edge
	MinOpacity float64 // Opacity floor for weak edges
	FontSize   float64 // Font size for labels
	PointSize  float64 // GPU point sprite size in pixels
	Palette    *Palette
}

// NewDefaultOptions creates a default set of output options
func NewDefaultOptions() *OutputOptions {
	p := DefaultPalette()
	return &OutputOptions{
		Background: p.Background,
		MinRadius:  4,
		MaxRadius:  16,
		EdgeWidth:  3,
		MinOpacity: 0.15,
		FontSize:   10,
		PointSize:  4,
		Palette:    p,
	}
}

func (o *OutputOptions) orDefault() *OutputOptions {
	if o == nil {
		return NewDefaultOptions()
	}
	if o.Palette == nil {
		c := *o
		c.Palette = DefaultPalette()
		return &c
	}
	return o
}

// Frame is everything a backend needs to paint once. All data is resident;
// backends never block.
type Frame struct {
	Nodes     []*models.Node
	Edges     []graph.SimulationEdge
	Transform view.Transform
	Width     float64
	Height    float64

	// Hovered and Selected are node ids, empty for none.
	Hovered  string
	Selected string

	// LargeDataset suppresses labels except for hovered/selected nodes.
	LargeDataset bool
}

// Renderer interface defines methods that all rendering backends must implement
type Renderer interface {
	// Render paints the frame and returns the encoded output
	Render(f *Frame) ([]byte, error)

	// Mode identifies the backend
	Mode() RenderMode

	// Name returns the name of the renderer
	Name() string

	// Description returns a description of the renderer
	Description() string
}

// Backends holds one renderer per mode. Draw dispatches on the mode chosen
// for the frame; the two paths share no state.
type Backends struct {
	Vector *VectorRenderer
	GPU    *GPURenderer
}

// NewBackends creates both renderers. The GPU path picks its draw strategy
// from c once, here.
func NewBackends(c Capability, opts *OutputOptions) *Backends {
	return &Backends{
		Vector: NewVectorRenderer(opts),
		GPU:    NewGPURenderer(c, opts),
	}
}

// Get returns the renderer for mode.
func (b *Backends) Get(mode RenderMode) (Renderer, error) {
	switch mode {
	case ModeVector:
		return b.Vector, nil
	case ModeGPU:
		return b.GPU, nil
	default:
		return nil, fmt.Errorf("unsupported render mode: %d", mode)
	}
}

// Draw renders f with the backend for mode.
func (b *Backends) Draw(mode RenderMode, f *Frame) ([]byte, error) {
	r, err := b.Get(mode)
	if err != nil {
		return nil, err
	}
	return r.Render(f)
}
