package service_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/removal"
	"github.com/USEPA-clone/nsink/internal/service"
	"github.com/USEPA-clone/nsink/internal/sse"
	"github.com/USEPA-clone/nsink/internal/staticmap"
	"github.com/USEPA-clone/nsink/internal/store"
	"github.com/USEPA-clone/nsink/internal/testutil"
)

type recorder struct {
	mu       sync.Mutex
	events   []string
	progress int
}

func (r *recorder) Publish(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.Type)
}

func (r *recorder) PublishProgress(string, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress++
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newService(t *testing.T) (*service.Service, *store.DB, *recorder) {
	t.Helper()
	db := testutil.TestStore(t)
	if err := db.SavePrepared(testutil.Watershed(t)); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	svc := service.New(db, service.Options{
		Removal:  removal.DefaultParams(),
		Sampling: staticmap.Options{Density: 30, Seed: 7, Workers: 2},
		Events:   rec,
	})
	return svc, db, rec
}

func TestNotLoaded(t *testing.T) {
	svc := service.New(testutil.TestStore(t), service.Options{})
	if svc.Ready() {
		t.Error("Ready before load")
	}
	if _, err := svc.Trace(context.Background(), 5, 85); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Trace err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Reload(context.Background()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Reload on empty store err = %v, want ErrNotFound", err)
	}
}

func TestReload_SkipsUnchanged(t *testing.T) {
	svc, db, rec := newService(t)
	ctx := context.Background()

	changed, err := svc.Reload(ctx)
	if err != nil || !changed {
		t.Fatalf("first Reload = %v, %v", changed, err)
	}
	first, _ := svc.Model()

	changed, err = svc.Reload(ctx)
	if err != nil || changed {
		t.Fatalf("second Reload = %v, %v, want unchanged", changed, err)
	}
	if m, _ := svc.Model(); m != first {
		t.Error("snapshot replaced although dataset is unchanged")
	}

	// Network removal is persisted on load.
	nr, err := db.NetworkRemoval(testutil.LowerStream)
	if err != nil {
		t.Fatalf("stored network removal: %v", err)
	}
	if nr.Type != models.RemovalStream {
		t.Errorf("stored type = %s", nr.Type)
	}

	ws := testutil.Watershed(t)
	ws.Flow[testutil.UpperStream] = models.FlowRecord{COMID: testutil.UpperStream, TOTMA: 2, QCMS: 0.5}
	if err := svc.Import(ctx, ws); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if m, _ := svc.Model(); m == first {
		t.Error("snapshot not replaced after import")
	}
	if got := rec.types(); len(got) != 2 || got[0] != sse.TypeDatasetReloaded {
		t.Errorf("events = %v", got)
	}
}

func TestReload_KeepsSnapshotOnFailure(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := svc.Model()

	ws := testutil.Watershed(t)
	delete(ws.Flow, testutil.LowerStream)
	if err := db.SavePrepared(ws); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reload(ctx); !errors.Is(err, apperr.ErrMissingAttribute) {
		t.Fatalf("Reload err = %v, want ErrMissingAttribute", err)
	}
	if m, _ := svc.Model(); m != before {
		t.Error("failed reload replaced the snapshot")
	}
}

func TestQueries(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Trace(ctx, 5, 85)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if len(res.Rows) == 0 || res.Line == nil {
		t.Fatalf("trace result = %+v", res)
	}
	if res.CumulativeRemoval < 0 || res.CumulativeRemoval > 100 {
		t.Errorf("cumulative = %v", res.CumulativeRemoval)
	}
	last := res.Rows[len(res.Rows)-1]
	if last.COMID != testutil.LowerStream {
		t.Errorf("last row comid = %d, want %d", last.COMID, testutil.LowerStream)
	}
	if _, err := svc.Trace(ctx, -50, 50); !errors.Is(err, apperr.ErrOutOfBounds) {
		t.Errorf("outside trace err = %v", err)
	}

	seg, err := svc.Segment(ctx, testutil.LakeUpper)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if seg.Removal == nil || seg.Removal.Type != models.RemovalLake {
		t.Errorf("lake segment removal = %+v", seg.Removal)
	}
	if seg.Downstream == nil || *seg.Downstream != testutil.LakeLower {
		t.Errorf("downstream = %v", seg.Downstream)
	}
	if !slices.Equal(seg.Upstream, []int64{testutil.UpperStream}) {
		t.Errorf("upstream = %v, want [%d]", seg.Upstream, testutil.UpperStream)
	}
	canal, err := svc.Segment(ctx, testutil.Canal)
	if err != nil || canal.Removal != nil || canal.Downstream != nil || canal.Upstream != nil {
		t.Errorf("canal = %+v, %v", canal, err)
	}
	if _, err := svc.Segment(ctx, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing segment err = %v", err)
	}

	lake, err := svc.Lake(ctx, testutil.LakeID)
	if err != nil {
		t.Fatalf("Lake: %v", err)
	}
	if lake.Removal == nil || len(lake.Removal.MemberSegments) != 2 {
		t.Errorf("lake removal = %+v", lake.Removal)
	}
	if want := []int64{testutil.LakeUpper, testutil.LakeLower}; !slices.Equal(lake.Segments, want) {
		t.Errorf("lake segments = %v, want %v", lake.Segments, want)
	}
	if _, err := svc.Lake(ctx, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing lake err = %v", err)
	}

	sum, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Segments != 4 || sum.OffNetwork != 1 || sum.Lakes != 1 || sum.SoilUnits != 2 {
		t.Errorf("summary counts = %+v", sum)
	}
	if len(sum.Outlets) != 1 || sum.Outlets[0] != testutil.LowerStream {
		t.Errorf("outlets = %v", sum.Outlets)
	}
	if sum.LandCells[models.RemovalLandHydric] == 0 {
		t.Errorf("land cells = %v", sum.LandCells)
	}
}

func TestGenerateStaticMaps(t *testing.T) {
	svc, db, rec := newService(t)
	ctx := context.Background()
	if _, err := svc.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	density := 25
	run, err := svc.GenerateStaticMaps(ctx, service.StaticMapRequest{Density: &density})
	if err != nil {
		t.Fatalf("GenerateStaticMaps: %v", err)
	}
	if run.ID == 0 || run.Density != 25 || run.Seed != 7 || run.Drawn != 25 {
		t.Errorf("run = %+v", run)
	}
	m, _ := svc.Model()
	if run.DatasetChecksum != m.Checksum {
		t.Error("run not tied to the loaded dataset")
	}

	runs, err := svc.Runs(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Runs = %v, %v", runs, err)
	}
	for _, name := range service.MapNames {
		r, err := db.LoadRunRaster(run.ID, name)
		if err != nil {
			t.Fatalf("raster %s: %v", name, err)
		}
		if r.Grid != testutil.Grid {
			t.Errorf("raster %s grid = %v", name, r.Grid)
		}
	}
	samples, err := svc.RunSamples(ctx, run.ID)
	if err != nil || len(samples) != run.Used {
		t.Errorf("samples = %d, %v; want %d", len(samples), err, run.Used)
	}

	got := rec.types()
	if len(got) < 3 || got[len(got)-2] != sse.TypeStaticMapsStarted || got[len(got)-1] != sse.TypeStaticMapsFinished {
		t.Errorf("events = %v", got)
	}
	if rec.progress != run.Drawn {
		t.Errorf("progress calls = %d, want %d", rec.progress, run.Drawn)
	}
}

func TestGenerateStaticMaps_ExplicitZero(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Reload(ctx); err != nil {
		t.Fatal(err)
	}

	var seed uint64
	run, err := svc.GenerateStaticMaps(ctx, service.StaticMapRequest{Seed: &seed})
	if err != nil {
		t.Fatalf("GenerateStaticMaps: %v", err)
	}
	if run.Seed != 0 || run.Density != 30 {
		t.Errorf("run density/seed = %d/%d, want 30/0", run.Density, run.Seed)
	}

	for _, density := range []int{0, -3} {
		if _, err := svc.GenerateStaticMaps(ctx, service.StaticMapRequest{Density: &density}); !errors.Is(err, apperr.ErrInsufficientSample) {
			t.Errorf("density %d err = %v, want ErrInsufficientSample", density, err)
		}
	}
}
