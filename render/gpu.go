package render

import (
	"encoding/json"
	"fmt"
	"math"
)

// DrawPath is the GPU draw strategy, fixed when the renderer is created.
type DrawPath string

const (
	// PathInstanced draws one point per instance in a single instanced call.
	PathInstanced DrawPath = "instanced"
	// PathDirect draws one vertex per node in a plain drawArrays call.
	PathDirect DrawPath = "direct"
)

// Vertex stage: world → screen via the pan/zoom uniforms, then to clip space.
const vertexShader = `attribute vec2 a_position;
uniform vec2 u_translate;
uniform float u_scale;
uniform vec2 u_resolution;
uniform float u_pointSize;
void main() {
  vec2 screen = a_position * u_scale + u_translate;
  vec2 clip = screen / u_resolution * 2.0 - 1.0;
  gl_Position = vec4(clip * vec2(1.0, -1.0), 0.0, 1.0);
  gl_PointSize = u_pointSize;
}`

const fragmentShader = `precision mediump float;
uniform vec4 u_color;
void main() {
  vec2 c = gl_PointCoord - vec2(0.5);
  if (dot(c, c) > 0.25) discard;
  gl_FragColor = u_color;
}`

// DrawCall describes one GL draw. Primitive is always POINTS.
type DrawCall struct {
	Primitive     string `json:"primitive"`
	First         int    `json:"first"`
	VertexCount   int    `json:"vertex_count"`
	InstanceCount int    `json:"instance_count,omitempty"`
}

// Uniforms feed the shader pipeline.
type Uniforms struct {
	Scale      float32    `json:"scale"`
	Translate  [2]float32 `json:"translate"`
	Resolution [2]float32 `json:"resolution"`
	PointSize  float32    `json:"point_size"`
	Color      [4]float32 `json:"color"`
}

// DrawList is the fully prepared GPU workload for a frame.
type DrawList struct {
	Path DrawPath `json:"path"`
	// Positions holds interleaved world x,y pairs.
	Positions []float32  `json:"positions"`
	Count     int        `json:"count"`
	Calls     []DrawCall `json:"calls"`
	Uniforms  Uniforms   `json:"uniforms"`
	Skipped   int        `json:"skipped"`
}

// GPURenderer draws visible nodes as translucent point sprites. It has no
// per-node styling and does no hit-testing.
type GPURenderer struct {
	opts *OutputOptions
	path DrawPath
}

// NewGPURenderer picks the instanced path when c advertises instancing and
// the direct path otherwise. Both produce the same pixels.
func NewGPURenderer(c Capability, opts *OutputOptions) *GPURenderer {
	path := PathDirect
	if c.Instancing() {
		path = PathInstanced
	}
	return &GPURenderer{opts: opts.orDefault(), path: path}
}

// Mode returns ModeGPU.
func (r *GPURenderer) Mode() RenderMode { return ModeGPU }

// Path returns the draw strategy chosen at construction.
func (r *GPURenderer) Path() DrawPath { return r.path }

// Name returns the name of the renderer
func (r *GPURenderer) Name() string {
	return "WebGL Renderer"
}

// Description returns a description of the renderer
func (r *GPURenderer) Description() string {
	return "Renders the visible subset as WebGL point sprites; read-only, no hover or selection"
}

// Prepare builds the draw list for f. Zero nodes yield a valid empty list
// with no draw calls. Nodes with non-finite positions are skipped.
func (r *GPURenderer) Prepare(f *Frame) DrawList {
	t := f.Transform
	if t.Scale == 0 {
		t.Scale = 1
	}
	dl := DrawList{
		Path:      r.path,
		Positions: make([]float32, 0, 2*len(f.Nodes)),
		Calls:     []DrawCall{},
		Uniforms: Uniforms{
			Scale:      float32(t.Scale),
			Translate:  [2]float32{float32(t.TranslateX), float32(t.TranslateY)},
			Resolution: [2]float32{float32(math.Max(f.Width, 1)), float32(math.Max(f.Height, 1))},
			PointSize:  float32(r.opts.PointSize),
			Color:      r.opts.Palette.GPUColor,
		},
	}
	for _, n := range f.Nodes {
		if !n.IsFinite() {
			dl.Skipped++
			continue
		}
		dl.Positions = append(dl.Positions, float32(n.X), float32(n.Y))
	}
	dl.Count = len(dl.Positions) / 2
	if dl.Count == 0 {
		return dl
	}

	switch r.path {
	case PathInstanced:
		dl.Calls = append(dl.Calls, DrawCall{Primitive: "POINTS", First: 0, VertexCount: 1, InstanceCount: dl.Count})
	default:
		dl.Calls = append(dl.Calls, DrawCall{Primitive: "POINTS", First: 0, VertexCount: dl.Count})
	}
	return dl
}

// Render creates a standalone WebGL page drawing the frame
func (r *GPURenderer) Render(f *Frame) ([]byte, error) {
	dl := r.Prepare(f)
	data, err := json.Marshal(dl)
	if err != nil {
		return nil, fmt.Errorf("failed to encode draw list: %w", err)
	}
	vs, err := json.Marshal(vertexShader)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vertex shader: %w", err)
	}
	fs, err := json.Marshal(fragmentShader)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fragment shader: %w", err)
	}

	drawCode := directDraw
	if r.path == PathInstanced {
		drawCode = instancedDraw
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>graphview - GPU view</title>
    <style>
        body, html { margin: 0; padding: 0; height: 100%%; overflow: hidden; background: %s; }
        #mode { position: absolute; top: 4px; left: 6px; font: 11px sans-serif; color: #808080; }
    </style>
</head>
<body>
    <canvas id="graph-canvas" width="%g" height="%g"></canvas>
    <div id="mode">GPU mode (%s): hover and selection unavailable</div>
    <script>
    const drawList = %s;
    const canvas = document.getElementById('graph-canvas');
    const gl = canvas.getContext('webgl');

    function compile(type, src) {
        const s = gl.createShader(type);
        gl.shaderSource(s, src);
        gl.compileShader(s);
        return s;
    }
    const program = gl.createProgram();
    gl.attachShader(program, compile(gl.VERTEX_SHADER, %s));
    gl.attachShader(program, compile(gl.FRAGMENT_SHADER, %s));
    gl.linkProgram(program);
    gl.useProgram(program);

    const u = drawList.uniforms;
    gl.uniform1f(gl.getUniformLocation(program, 'u_scale'), u.scale);
    gl.uniform2fv(gl.getUniformLocation(program, 'u_translate'), u.translate);
    gl.uniform2fv(gl.getUniformLocation(program, 'u_resolution'), u.resolution);
    gl.uniform1f(gl.getUniformLocation(program, 'u_pointSize'), u.point_size);
    gl.uniform4fv(gl.getUniformLocation(program, 'u_color'), u.color);

    gl.enable(gl.BLEND);
    gl.blendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA);
    gl.clear(gl.COLOR_BUFFER_BIT);

    const buffer = gl.createBuffer();
    gl.bindBuffer(gl.ARRAY_BUFFER, buffer);
    gl.bufferData(gl.ARRAY_BUFFER, new Float32Array(drawList.positions), gl.STATIC_DRAW);
    const loc = gl.getAttribLocation(program, 'a_position');
    gl.enableVertexAttribArray(loc);
    gl.vertexAttribPointer(loc, 2, gl.FLOAT, false, 0, 0);
%s
    </script>
</body>
</html>`, r.opts.Background, math.Max(f.Width, 1), math.Max(f.Height, 1), r.path, data, vs, fs, drawCode)

	return []byte(html), nil
}

const instancedDraw = `
    const ext = gl.getExtension('ANGLE_instanced_arrays');
    ext.vertexAttribDivisorANGLE(loc, 1);
    drawList.calls.forEach(c => ext.drawArraysInstancedANGLE(gl.POINTS, c.first, c.vertex_count, c.instance_count));`

const directDraw = `
    drawList.calls.forEach(c => gl.drawArrays(gl.POINTS, c.first, c.vertex_count));`
