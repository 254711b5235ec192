// Package testutil provides shared test helpers: a synthetic watershed and a
// temporary layer store.
package testutil

import (
	"os"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
	"github.com/USEPA-clone/nsink/internal/store"
)

// Synthetic watershed identifiers.
const (
	UpperStream int64 = 101
	LakeUpper   int64 = 102
	LakeLower   int64 = 103
	LowerStream int64 = 104
	Canal       int64 = 201
	LakeID      int64 = 900
	HydricUnit  int64 = 1001
	UplandUnit  int64 = 1002
	OutletNode  int64 = 5
)

// Grid is the 10x10 grid of 10 m cells covering (0,0)-(100,100).
var Grid = raster.Grid{OriginX: 0, OriginY: 100, CellSize: 10, Rows: 10, Cols: 10, CRS: "EPSG:5070"}

// Line builds an XY polyline from x, y pairs.
func Line(xy ...float64) *geom.LineString {
	return geom.NewLineStringFlat(geom.XY, xy)
}

// Rect builds an axis-aligned polygon.
func Rect(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
}

// MultiRect wraps Rect as a one-member multipolygon.
func MultiRect(minX, minY, maxX, maxY float64) *geom.MultiPolygon {
	mp := geom.NewMultiPolygon(geom.XY)
	if err := mp.Push(Rect(minX, minY, maxX, maxY)); err != nil {
		panic(err)
	}
	return mp
}

// Watershed returns a fresh synthetic HUC12.
//
// The main stem runs south along x=95: stream 101, lake 900 (segments 102
// and 103), then stream 104 to the outlet. Every cell west of the stem
// drains east; the stem column drains south. The west half is 80% hydric
// soil, the east half 10%. An off-network canal runs along x=25. The top
// row of the west half is 60% impervious.
func Watershed(t testing.TB) *geodata.Prepared {
	t.Helper()
	g := Grid
	fdr, lc, imp := raster.New(g), raster.New(g), raster.New(g)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			cell := raster.Cell{Row: r, Col: c}
			switch {
			case c == g.Cols-1:
				fdr.Set(cell, raster.South)
			default:
				fdr.Set(cell, raster.East)
			}
			switch {
			case c < 5:
				lc.Set(cell, 82)
			case c == 9 && r >= 3 && r <= 6:
				lc.Set(cell, 11)
			default:
				lc.Set(cell, 41)
			}
			v := 0.
			if r == 0 && c < 5 {
				v = 60
			}
			imp.Set(cell, v)
		}
	}

	return &geodata.Prepared{
		HUC:      "010100020101",
		Grid:     g,
		Boundary: Rect(0, 0, 100, 100),
		Streams: []models.StreamSegment{
			{COMID: UpperStream, Geometry: Line(95, 100, 95, 70), FromNode: 1, ToNode: 2, StreamOrder: 1, FType: models.FTypeStream},
			{COMID: LakeUpper, Geometry: Line(95, 70, 95, 40), FromNode: 2, ToNode: 3, StreamOrder: 1, LakeCOMID: LakeID, FType: models.FTypeArtificial},
			{COMID: LakeLower, Geometry: Line(95, 40, 95, 30), FromNode: 3, ToNode: 4, StreamOrder: 1, LakeCOMID: LakeID, FType: models.FTypeArtificial},
			{COMID: LowerStream, Geometry: Line(95, 30, 95, 0), FromNode: 4, ToNode: OutletNode, StreamOrder: 2, FType: models.FTypeStream},
			{COMID: Canal, Geometry: Line(25, 100, 25, 0), FromNode: 10, ToNode: 11, StreamOrder: 1, FType: models.FTypeCanal, OffNetwork: true},
		},
		Flow: map[int64]models.FlowRecord{
			UpperStream: {COMID: UpperStream, TOTMA: 0.2, QCMS: 0.5},
			LakeUpper:   {COMID: LakeUpper, TOTMA: 0.1, QCMS: 0.6},
			LakeLower:   {COMID: LakeLower, TOTMA: 0.05, QCMS: 0.6},
			LowerStream: {COMID: LowerStream, TOTMA: 0.3, QCMS: 0.8},
		},
		Lakes: []models.Lake{{COMID: LakeID, Geometry: Rect(90, 28, 100, 72)}},
		Morphology: map[int64]models.LakeMorphology{
			LakeID: {COMID: LakeID, MeanDepth: 2, Volume: 2e6, MaxDepth: 5, Area: 1e6},
		},
		Soils: []models.HydricSoilUnit{
			{MUKEY: HydricUnit, Geometry: MultiRect(0, 0, 50, 100), HydricPct: 80},
			{MUKEY: UplandUnit, Geometry: MultiRect(50, 0, 100, 100), HydricPct: 10},
		},
		FlowDir:    fdr,
		LandCover:  lc,
		Impervious: imp,
	}
}

// TestStore opens a layer store in a temporary file that is removed when the
// test ends.
func TestStore(t testing.TB) *store.DB {
	t.Helper()
	f, err := os.CreateTemp("", "nsink-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := store.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
