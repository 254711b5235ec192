package ingest_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/ingest"
	"github.com/USEPA-clone/nsink/internal/raster"
	"github.com/USEPA-clone/nsink/internal/storage"
	"github.com/USEPA-clone/nsink/internal/testutil"
)

func writeBundle(t *testing.T, p *geodata.Prepared) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteBundle(t, dir, p)
	return dir
}

func TestDir_RoundTrip(t *testing.T) {
	want := testutil.Watershed(t)
	b, err := ingest.Dir(writeBundle(t, want))
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	got := b.Prepared
	if got.HUC != want.HUC || got.Grid != want.Grid {
		t.Errorf("huc/grid = %q %v, want %q %v", got.HUC, got.Grid, want.HUC, want.Grid)
	}
	if !slices.Equal(got.FlowDir.Data, want.FlowDir.Data) || !slices.Equal(got.LandCover.Data, want.LandCover.Data) {
		t.Error("raster values changed")
	}
	if len(got.Streams) != len(want.Streams) {
		t.Fatalf("streams = %d, want %d", len(got.Streams), len(want.Streams))
	}
	for i, s := range got.Streams {
		w := want.Streams[i]
		if s.COMID != w.COMID || s.FromNode != w.FromNode || s.ToNode != w.ToNode ||
			s.StreamOrder != w.StreamOrder || s.LakeCOMID != w.LakeCOMID || s.FType != w.FType || s.OffNetwork != w.OffNetwork {
			t.Errorf("stream %d = %+v, want %+v", i, s, w)
		}
	}
	if got.Flow[testutil.LowerStream] != want.Flow[testutil.LowerStream] {
		t.Errorf("flow = %+v", got.Flow[testutil.LowerStream])
	}
	if _, ok := got.Flow[testutil.Canal]; ok {
		t.Error("canal without flow attributes got a flow record")
	}
	if got.Morphology[testutil.LakeID] != want.Morphology[testutil.LakeID] {
		t.Errorf("morphology = %+v", got.Morphology[testutil.LakeID])
	}
	if len(got.Soils) != 2 || got.Soils[0].HydricPct != 80 {
		t.Errorf("soils = %+v", got.Soils)
	}
	for _, name := range []string{ingest.FileManifest, ingest.FileStreams, ingest.FileFlowDir} {
		if len(b.Checksums[name]) != 64 {
			t.Errorf("checksum for %s = %q", name, b.Checksums[name])
		}
	}
}

func TestDir_OptionalLayers(t *testing.T) {
	p := testutil.Watershed(t)
	dir := writeBundle(t, p)
	os.Remove(filepath.Join(dir, ingest.FileLakes))
	os.Remove(filepath.Join(dir, ingest.FileSoils))

	b, err := ingest.Dir(dir)
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if len(b.Prepared.Lakes) != 0 || len(b.Prepared.Soils) != 0 {
		t.Errorf("lakes=%d soils=%d, want 0", len(b.Prepared.Lakes), len(b.Prepared.Soils))
	}
	if _, ok := b.Checksums[ingest.FileLakes]; ok {
		t.Error("missing file has a checksum")
	}
}

func TestDir_MissingStreamAttribute(t *testing.T) {
	dir := writeBundle(t, testutil.Watershed(t))
	testutil.WriteFeatures(t, dir, ingest.FileStreams, []*geojson.Feature{{
		Geometry:   geom.NewLineStringFlat(geom.XY, []float64{95, 100, 95, 0}),
		Properties: map[string]any{"COMID": 1, "FROMNODE": 1},
	}})
	if _, err := ingest.Dir(dir); !errors.Is(err, apperr.ErrMissingAttribute) {
		t.Errorf("err = %v, want ErrMissingAttribute", err)
	}
}

func TestDir_GridMismatch(t *testing.T) {
	p := testutil.Watershed(t)
	dir := writeBundle(t, p)
	g := p.Grid
	g.Cols = 5
	testutil.WriteRaster(t, dir, ingest.FileImpervious, raster.New(g))
	if _, err := ingest.Dir(dir); !errors.Is(err, apperr.ErrGridMismatch) {
		t.Errorf("err = %v, want ErrGridMismatch", err)
	}
}

func TestDir_UnknownManifestField(t *testing.T) {
	dir := writeBundle(t, testutil.Watershed(t))
	testutil.WriteFile(t, dir, ingest.FileManifest, []byte("huc: x\nprojection: y\n"))
	if _, err := ingest.Dir(dir); err == nil {
		t.Error("expected error for unknown manifest field")
	}
}

func TestLoad_Provider(t *testing.T) {
	root := t.TempDir()
	testutil.WriteBundle(t, filepath.Join(root, "huc-a"), testutil.Watershed(t))

	lib, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := lib.Sub("huc-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ingest.Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.Manifest.HUC != "010100020101" || len(b.Prepared.Streams) != 5 {
		t.Errorf("bundle = %+v", b.Manifest)
	}
}

func TestDir_Missing(t *testing.T) {
	if _, err := ingest.Dir(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected error for a missing bundle directory")
	}
}
