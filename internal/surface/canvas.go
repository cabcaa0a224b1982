// Package surface provides an in-memory render target that a terminal view
// can draw from.
package surface

import "github.com/daviddao/megagrid/internal/grid"

// Canvas stores the last color painted into every cell plus one hover
// highlight. It is not safe for concurrent use.
type Canvas struct {
	width, height int
	cells         []grid.Color
	hlX, hlY      int
	hasHighlight  bool
	paints        int
}

// NewCanvas returns an empty canvas. Call Init before painting.
func NewCanvas() *Canvas { return &Canvas{} }

// Init resets the canvas to width x height black cells.
func (c *Canvas) Init(width, height int) {
	c.width, c.height = width, height
	c.cells = make([]grid.Color, width*height)
	c.hasHighlight = false
	c.paints = 0
}

// PaintCell sets the color of (x, y). Off-canvas paints are ignored.
func (c *Canvas) PaintCell(x, y int, color grid.Color) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return
	}
	c.cells[y*c.width+x] = color
	c.paints++
}

// ClearOverlay removes the highlight.
func (c *Canvas) ClearOverlay() { c.hasHighlight = false }

// DrawHighlight marks (x, y) as hovered.
func (c *Canvas) DrawHighlight(x, y int) {
	c.hlX, c.hlY = x, y
	c.hasHighlight = true
}

// Size returns the canvas dimensions.
func (c *Canvas) Size() (width, height int) { return c.width, c.height }

// At returns the color last painted at (x, y).
func (c *Canvas) At(x, y int) grid.Color {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return 0
	}
	return c.cells[y*c.width+x]
}

// Highlight returns the hovered cell, if any.
func (c *Canvas) Highlight() (x, y int, ok bool) {
	return c.hlX, c.hlY, c.hasHighlight
}

// Paints counts PaintCell calls since Init.
func (c *Canvas) Paints() int { return c.paints }
