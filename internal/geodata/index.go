package geodata

import (
	"iter"
	"maps"
	"slices"

	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
)

// SegmentHit is the nearest on-network segment to a cell centre.
type SegmentHit struct {
	COMID    int64
	Distance float64
}

// SegmentIndex maps cells to the nearest on-network segment within a buffer.
type SegmentIndex struct {
	grid   raster.Grid
	buffer float64
	hits   map[int]SegmentHit
}

// NewSegmentIndex indexes every on-network segment of p. A cell is covered
// when the segment touches its footprint or its centre lies within buffer of
// the segment, so a diagonal walk cannot step over a stream. Ties between
// segments go to the smaller centre distance, then the lower COMID.
func NewSegmentIndex(p *Prepared, buffer float64) *SegmentIndex {
	idx := &SegmentIndex{grid: p.Grid, buffer: buffer, hits: make(map[int]SegmentHit)}
	for _, s := range p.Streams {
		if s.OffNetwork {
			continue
		}
		cells := append(CellsCrossedByLine(p.Grid, s.Geometry), CellsNearLine(p.Grid, s.Geometry, buffer)...)
		for _, c := range cells {
			x, y := p.Grid.Center(c)
			hit := SegmentHit{COMID: s.COMID, Distance: DistanceToLine(s.Geometry, x, y)}
			i := p.Grid.Index(c)
			if cur, ok := idx.hits[i]; !ok || closer(hit, cur) {
				idx.hits[i] = hit
			}
		}
	}
	return idx
}

func closer(a, b SegmentHit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.COMID < b.COMID
}

// Nearest returns the segment covering c, if any.
func (idx *SegmentIndex) Nearest(c raster.Cell) (SegmentHit, bool) {
	if !idx.grid.Contains(c) {
		return SegmentHit{}, false
	}
	h, ok := idx.hits[idx.grid.Index(c)]
	return h, ok
}

// Buffer returns the distance the index was built with.
func (idx *SegmentIndex) Buffer() float64 { return idx.buffer }

// Len returns the number of covered cells.
func (idx *SegmentIndex) Len() int { return len(idx.hits) }

// SoilIndex returns, per cell, the index into p.Soils of the unit containing
// the cell centre, or -1. When units overlap the first one wins.
func SoilIndex(p *Prepared) []int {
	out := make([]int, p.Grid.Len())
	for i := range out {
		out[i] = -1
	}
	for ui, u := range p.Soils {
		if u.Geometry == nil {
			continue
		}
		for pi := 0; pi < u.Geometry.NumPolygons(); pi++ {
			for _, c := range CellsInPolygon(p.Grid, u.Geometry.Polygon(pi)) {
				if i := p.Grid.Index(c); out[i] < 0 {
					out[i] = ui
				}
			}
		}
	}
	return out
}

// OffNetworkCells returns the cells crossed by off-network features grouped by
// the feature class that governs their policy.
func OffNetworkCells(p *Prepared) (lakes, streams, canals []raster.Cell) {
	half := p.Grid.CellSize / 2
	for _, s := range p.Streams {
		if !s.OffNetwork {
			continue
		}
		cells := CellsNearLine(p.Grid, s.Geometry, half)
		if s.FType == models.FTypeCanal {
			canals = append(canals, cells...)
		} else {
			streams = append(streams, cells...)
		}
	}
	for _, l := range p.Lakes {
		if l.OffNetwork {
			lakes = append(lakes, CellsInPolygon(p.Grid, l.Geometry)...)
		}
	}
	return lakes, streams, canals
}

// All yields every covered cell in row-major order.
func (idx *SegmentIndex) All() iter.Seq2[raster.Cell, SegmentHit] {
	return func(yield func(raster.Cell, SegmentHit) bool) {
		for _, i := range slices.Sorted(maps.Keys(idx.hits)) {
			if !yield(idx.grid.CellAt(i), idx.hits[i]) {
				return
			}
		}
	}
}
