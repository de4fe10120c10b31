package render

// Palette provides color schemes for graph visualization
type Palette struct {
	NodeColors []string
	EdgeColor  string
	Background string
	// GPUColor is the single translucent RGBA fill used by the GPU path.
	GPUColor [4]float32
}

// DefaultPalette returns a default color palette with vibrant colors
func DefaultPalette() *Palette {
	return &Palette{
		NodeColors: []string{
			"#4285F4", // Google Blue
			"#EA4335", // Google Red
			"#FBBC05", // Google Yellow
			"#34A853", // Google Green
			"#673AB7", // Purple
			"#3F51B5", // Indigo
			"#00BCD4", // Cyan
			"#009688", // Teal
			"#FF5722", // Deep Orange
		},
		EdgeColor:  "#666666",
		Background: "#f8f8f8",
		GPUColor:   [4]float32{0.26, 0.52, 0.96, 0.6},
	}
}

// NodeColor picks the color for a cluster id, cycling when the id exceeds
// the palette size. Negative ids cycle too.
func (p *Palette) NodeColor(cluster int) string {
	n := len(p.NodeColors)
	if n == 0 {
		return "#999999"
	}
	i := cluster % n
	if i < 0 {
		i += n
	}
	return p.NodeColors[i]
}
