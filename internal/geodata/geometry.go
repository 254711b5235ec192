package geodata

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"github.com/USEPA-clone/nsink/internal/raster"
)

// Locate classifies (x, y) against poly, honouring holes.
func Locate(poly *geom.Polygon, x, y float64) location.Type {
	if poly == nil || poly.NumLinearRings() == 0 {
		return location.Exterior
	}
	p := geom.Coord{x, y}
	layout := poly.Layout()
	loc := xy.LocatePointInRing(layout, p, poly.LinearRing(0).FlatCoords())
	if loc != location.Interior {
		return loc
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		switch xy.LocatePointInRing(layout, p, poly.LinearRing(i).FlatCoords()) {
		case location.Interior:
			return location.Exterior
		case location.Boundary:
			return location.Boundary
		}
	}
	return location.Interior
}

// InPolygon reports whether (x, y) is inside poly or on its boundary.
func InPolygon(poly *geom.Polygon, x, y float64) bool {
	return Locate(poly, x, y) != location.Exterior
}

// DistanceToLine returns the planar distance from (x, y) to ls.
func DistanceToLine(ls *geom.LineString, x, y float64) float64 {
	if ls == nil || ls.NumCoords() == 0 {
		return math.Inf(1)
	}
	if ls.NumCoords() == 1 {
		c := ls.Coord(0)
		return math.Hypot(c.X()-x, c.Y()-y)
	}
	return xy.DistanceFromPointToLineString(ls.Layout(), geom.Coord{x, y}, ls.FlatCoords())
}

// CellsNearLine returns every cell whose centre lies within dist of ls.
func CellsNearLine(g raster.Grid, ls *geom.LineString, dist float64) []raster.Cell {
	if ls == nil || ls.NumCoords() == 0 {
		return nil
	}
	b := ls.Bounds()
	first, last, ok := g.Span(b.Min(0)-dist, b.Min(1)-dist, b.Max(0)+dist, b.Max(1)+dist)
	if !ok {
		return nil
	}
	var cells []raster.Cell
	for r := first.Row; r <= last.Row; r++ {
		for c := first.Col; c <= last.Col; c++ {
			cell := raster.Cell{Row: r, Col: c}
			x, y := g.Center(cell)
			if DistanceToLine(ls, x, y) <= dist {
				cells = append(cells, cell)
			}
		}
	}
	return cells
}

// CellsCrossedByLine returns every cell whose footprint ls touches,
// including cells it only meets at an edge or corner.
func CellsCrossedByLine(g raster.Grid, ls *geom.LineString) []raster.Cell {
	if ls == nil || ls.NumCoords() == 0 {
		return nil
	}
	b := ls.Bounds()
	pad := g.CellSize * 1e-9
	first, last, ok := g.Span(b.Min(0)-pad, b.Min(1)-pad, b.Max(0)+pad, b.Max(1)+pad)
	if !ok {
		return nil
	}
	n := ls.NumCoords()
	var cells []raster.Cell
	for r := first.Row; r <= last.Row; r++ {
		for c := first.Col; c <= last.Col; c++ {
			minX := g.OriginX + float64(c)*g.CellSize
			maxY := g.OriginY - float64(r)*g.CellSize
			maxX, minY := minX+g.CellSize, maxY-g.CellSize
			for i := 0; i < max(n-1, 1); i++ {
				a, z := ls.Coord(i), ls.Coord(min(i+1, n-1))
				if segmentTouchesBox(a.X(), a.Y(), z.X(), z.Y(), minX, minY, maxX, maxY) {
					cells = append(cells, raster.Cell{Row: r, Col: c})
					break
				}
			}
		}
	}
	return cells
}

// segmentTouchesBox clips (x0,y0)-(x1,y1) against the closed box
// (Liang-Barsky). A degenerate segment is treated as a point.
func segmentTouchesBox(x0, y0, x1, y1, minX, minY, maxX, maxY float64) bool {
	dx, dy := x1-x0, y1-y0
	t0, t1 := 0.0, 1.0
	for _, e := range [4][2]float64{
		{-dx, x0 - minX},
		{dx, maxX - x0},
		{-dy, y0 - minY},
		{dy, maxY - y0},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			t0 = max(t0, r)
		} else {
			if r < t0 {
				return false
			}
			t1 = min(t1, r)
		}
	}
	return t0 <= t1
}

// CellsInPolygon returns every cell whose centre lies in poly.
func CellsInPolygon(g raster.Grid, poly *geom.Polygon) []raster.Cell {
	if poly == nil || poly.NumLinearRings() == 0 {
		return nil
	}
	b := poly.Bounds()
	first, last, ok := g.Span(b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	if !ok {
		return nil
	}
	var cells []raster.Cell
	for r := first.Row; r <= last.Row; r++ {
		for c := first.Col; c <= last.Col; c++ {
			cell := raster.Cell{Row: r, Col: c}
			if x, y := g.Center(cell); InPolygon(poly, x, y) {
				cells = append(cells, cell)
			}
		}
	}
	return cells
}
