package view

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/graphview/models"
)

func TestWheelZoomsToCursor(t *testing.T) {
	c := NewController(0, 0)
	cursor := models.Point{X: 400, Y: 300}
	before := c.Transform().ScreenToWorld(cursor)

	require.True(t, c.Wheel(cursor, -120))
	assert.Greater(t, c.Transform().Scale, 1.0)

	after := c.Transform().WorldToScreen(before)
	assert.InDelta(t, 400, after.X, 1e-9)
	assert.InDelta(t, 300, after.Y, 1e-9)
}

func TestWheelClampsScale(t *testing.T) {
	c := NewController(0.5, 2)
	for i := 0; i < 50; i++ {
		c.Wheel(models.Point{X: 10, Y: 10}, -500)
	}
	assert.Equal(t, 2.0, c.Transform().Scale)
	assert.False(t, c.Wheel(models.Point{}, -500))

	for i := 0; i < 50; i++ {
		c.Wheel(models.Point{X: 10, Y: 10}, 500)
	}
	assert.Equal(t, 0.5, c.Transform().Scale)
}

func TestDragPrimaryOnly(t *testing.T) {
	c := NewController(0, 0)

	assert.False(t, c.PointerDown(models.Point{X: 10, Y: 10}, ButtonSecondary))
	assert.False(t, c.PointerMove(models.Point{X: 50, Y: 50}))
	assert.Equal(t, Identity(), c.Transform())

	require.True(t, c.PointerDown(models.Point{X: 10, Y: 10}, ButtonPrimary))
	c.PointerMove(models.Point{X: 30, Y: 15})
	c.PointerMove(models.Point{X: 40, Y: 25})
	assert.Equal(t, 30.0, c.Transform().TranslateX)
	assert.Equal(t, 15.0, c.Transform().TranslateY)

	c.PointerUp()
	assert.False(t, c.PointerMove(models.Point{X: 100, Y: 100}))
	assert.Equal(t, 30.0, c.Transform().TranslateX)
}

func TestWorldBoundsInvertsTransform(t *testing.T) {
	tr := Transform{Scale: 2, TranslateX: 100, TranslateY: 50}
	b := tr.WorldBounds(800, 600, 0)
	assert.InDelta(t, -50, b.Left, 1e-9)
	assert.InDelta(t, -25, b.Top, 1e-9)
	assert.InDelta(t, 350, b.Right, 1e-9)
	assert.InDelta(t, 275, b.Bottom, 1e-9)

	padded := tr.WorldBounds(800, 600, 20)
	assert.InDelta(t, -60, padded.Left, 1e-9)
	assert.InDelta(t, 360, padded.Right, 1e-9)
}

func TestFitBoundsAndFocus(t *testing.T) {
	c := NewController(0, 0)
	c.FitBounds(models.Bounds{Left: 0, Right: 400, Top: 0, Bottom: 100}, 800, 600, 0)
	assert.InDelta(t, 2, c.Transform().Scale, 1e-9)
	center := c.Transform().WorldToScreen(models.Point{X: 200, Y: 50})
	assert.InDelta(t, 400, center.X, 1e-9)
	assert.InDelta(t, 300, center.Y, 1e-9)

	c.FocusNode(models.Point{X: 10, Y: 20}, 800, 600)
	focus := c.Transform().WorldToScreen(models.Point{X: 10, Y: 20})
	assert.InDelta(t, 400, focus.X, 1e-9)
	assert.InDelta(t, 300, focus.Y, 1e-9)

	c.Reset()
	assert.Equal(t, Identity(), c.Transform())
}

func TestExtentSkipsNonFinite(t *testing.T) {
	_, ok := Extent(nil)
	assert.False(t, ok)

	b, ok := Extent([]*models.Node{{X: 1, Y: 2}, {X: -3, Y: 8}})
	require.True(t, ok)
	assert.Equal(t, models.Bounds{Left: -3, Right: 1, Top: 2, Bottom: 8}, b)
}

func TestZoomToCursorProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("point under cursor is fixed", prop.ForAll(
		func(x, y, delta float64) bool {
			c := NewController(1e-6, 1e6)
			cursor := models.Point{X: x, Y: y}
			before := c.Transform().ScreenToWorld(cursor)
			c.Wheel(cursor, delta)
			after := c.Transform().WorldToScreen(before)
			return abs(after.X-x) < 1e-6 && abs(after.Y-y) < 1e-6
		},
		gen.Float64Range(0, 1920),
		gen.Float64Range(0, 1080),
		gen.Float64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
