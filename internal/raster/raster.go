package raster

import (
	"fmt"
	"math"
)

// Raster is a row-major grid of float64 values. Cells equal to NoData (or
// NaN) carry no value.
type Raster struct {
	Grid Grid
	Data []float64
}

// New returns a raster on g with every cell set to NoData.
func New(g Grid) *Raster {
	d := make([]float64, g.Len())
	for i := range d {
		d[i] = NoData
	}
	return &Raster{Grid: g, Data: d}
}

// FromSlice wraps data (row-major, len rows*cols) as a raster on g.
func FromSlice(g Grid, data []float64) (*Raster, error) {
	if len(data) != g.Len() {
		return nil, fmt.Errorf("raster: %d values for %dx%d grid", len(data), g.Rows, g.Cols)
	}
	return &Raster{Grid: g, Data: data}, nil
}

// IsNoData reports whether v is the NoData sentinel.
func IsNoData(v float64) bool { return v == NoData || math.IsNaN(v) }

// At returns the value at c. ok is false outside the grid or on NoData.
func (r *Raster) At(c Cell) (v float64, ok bool) {
	if !r.Grid.Contains(c) {
		return 0, false
	}
	v = r.Data[r.Grid.Index(c)]
	if IsNoData(v) {
		return 0, false
	}
	return v, true
}

// Set stores v at c; cells outside the grid are ignored.
func (r *Raster) Set(c Cell, v float64) {
	if r.Grid.Contains(c) {
		r.Data[r.Grid.Index(c)] = v
	}
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	d := make([]float64, len(r.Data))
	copy(d, r.Data)
	return &Raster{Grid: r.Grid, Data: d}
}

// Valid returns the number of cells holding a value.
func (r *Raster) Valid() int {
	n := 0
	for _, v := range r.Data {
		if !IsNoData(v) {
			n++
		}
	}
	return n
}
