package store

import (
	"math"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/USEPA-clone/nsink/internal/raster"
)

func TestRasterBlob(t *testing.T) {
	g := raster.Grid{CellSize: 1, Rows: 2, Cols: 2}
	r, _ := raster.FromSlice(g, []float64{1.5, raster.NoData, math.Inf(1), -0})
	got, err := decodeRaster(g, encodeRaster(r))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range r.Data {
		if got.Data[i] != r.Data[i] {
			t.Errorf("cell %d = %v, want %v", i, got.Data[i], r.Data[i])
		}
	}
	if _, err := decodeRaster(g, make([]byte, 7)); err == nil {
		t.Error("short blob should fail")
	}
}

func TestGeomWrongType(t *testing.T) {
	b, err := encodeGeom(geom.NewLineStringFlat(geom.XY, []float64{0, 0, 1, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := decodeGeom[*geom.Polygon](b); err == nil {
		t.Error("decoding a line as a polygon should fail")
	}
	if _, err := decodeGeom[*geom.LineString](b); err != nil {
		t.Errorf("decode line: %v", err)
	}
}
