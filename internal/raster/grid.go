// Package raster provides the shared grid definition, float rasters with an
// explicit NoData sentinel, and D8 flow-direction decoding.
package raster

import (
	"fmt"
	"math"

	"github.com/USEPA-clone/nsink/internal/apperr"
)

// NoData is the sentinel written to cells that carry no value.
const NoData = -9999.

// Cell addresses a raster cell by row (north to south) and column (west to east).
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Grid defines the raster template every layer is aligned to. OriginX/OriginY
// is the upper-left corner; cells are square.
type Grid struct {
	OriginX  float64 `json:"origin_x"`
	OriginY  float64 `json:"origin_y"`
	CellSize float64 `json:"cell_size"`
	Rows     int     `json:"rows"`
	Cols     int     `json:"cols"`
	CRS      string  `json:"crs"`
}

// Len returns the number of cells in the grid.
func (g Grid) Len() int { return g.Rows * g.Cols }

// Contains reports whether c lies inside the grid extent.
func (g Grid) Contains(c Cell) bool {
	return c.Row >= 0 && c.Row < g.Rows && c.Col >= 0 && c.Col < g.Cols
}

// Index returns the row-major array index of c. c must be inside the grid.
func (g Grid) Index(c Cell) int { return c.Row*g.Cols + c.Col }

// CellAt is the inverse of Index.
func (g Grid) CellAt(i int) Cell { return Cell{Row: i / g.Cols, Col: i % g.Cols} }

// CellOf returns the cell containing map coordinate (x, y). Points on the
// east or south edge of the extent belong to the last column/row.
func (g Grid) CellOf(x, y float64) (Cell, bool) {
	fc := (x - g.OriginX) / g.CellSize
	fr := (g.OriginY - y) / g.CellSize
	if fc < 0 || fr < 0 || fc > float64(g.Cols) || fr > float64(g.Rows) {
		return Cell{}, false
	}
	c := Cell{Row: int(math.Floor(fr)), Col: int(math.Floor(fc))}
	if c.Col == g.Cols {
		c.Col--
	}
	if c.Row == g.Rows {
		c.Row--
	}
	return c, true
}

// Center returns the map coordinate of the centre of c.
func (g Grid) Center(c Cell) (x, y float64) {
	x = g.OriginX + (float64(c.Col)+.5)*g.CellSize
	y = g.OriginY - (float64(c.Row)+.5)*g.CellSize
	return x, y
}

// Bounds returns the map extent of c as min x, min y, max x, max y.
func (g Grid) Bounds(c Cell) (minX, minY, maxX, maxY float64) {
	minX = g.OriginX + float64(c.Col)*g.CellSize
	maxY = g.OriginY - float64(c.Row)*g.CellSize
	return minX, maxY - g.CellSize, minX + g.CellSize, maxY
}

// Span returns the inclusive range of cells overlapping the map window,
// clipped to the grid. ok is false when the window misses the grid.
func (g Grid) Span(minX, minY, maxX, maxY float64) (first, last Cell, ok bool) {
	c0 := int(math.Floor((minX - g.OriginX) / g.CellSize))
	c1 := int(math.Floor((maxX - g.OriginX) / g.CellSize))
	r0 := int(math.Floor((g.OriginY - maxY) / g.CellSize))
	r1 := int(math.Floor((g.OriginY - minY) / g.CellSize))
	c0, c1 = max(c0, 0), min(c1, g.Cols-1)
	r0, r1 = max(r0, 0), min(r1, g.Rows-1)
	if c0 > c1 || r0 > r1 {
		return Cell{}, Cell{}, false
	}
	return Cell{Row: r0, Col: c0}, Cell{Row: r1, Col: c1}, true
}

// Validate checks the grid has a usable shape.
func (g Grid) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("raster: grid has no cells (%dx%d)", g.Rows, g.Cols)
	}
	if !(g.CellSize > 0) {
		return fmt.Errorf("raster: cell size must be positive, got %v", g.CellSize)
	}
	return nil
}

// Match returns ErrGridMismatch unless o shares exactly the same definition.
func (g Grid) Match(o Grid) error {
	if g != o {
		return fmt.Errorf("%w: %s vs %s", apperr.ErrGridMismatch, g, o)
	}
	return nil
}

func (g Grid) String() string {
	return fmt.Sprintf("grid{origin=(%g,%g) cell=%g %dx%d crs=%q}", g.OriginX, g.OriginY, g.CellSize, g.Rows, g.Cols, g.CRS)
}
