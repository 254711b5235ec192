package staticmap

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/flowpath"
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/network"
	"github.com/USEPA-clone/nsink/internal/raster"
	"github.com/USEPA-clone/nsink/internal/removal"
	"github.com/USEPA-clone/nsink/internal/testutil"
)

type fixture struct {
	data     *geodata.Prepared
	tracer   *flowpath.Tracer
	surfaces *removal.Surfaces
}

func newFixture(t *testing.T, p *geodata.Prepared) fixture {
	t.Helper()
	g, err := network.Build(p.Streams, p.Flow, p.Lakes)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, err := removal.Compute(p, removal.DefaultParams())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return fixture{data: p, tracer: flowpath.NewTracer(p, g, flowpath.Options{}), surfaces: s}
}

func (f fixture) generate(t *testing.T, opts Options) (*Maps, error) {
	t.Helper()
	return Generate(context.Background(), f.data, f.tracer, f.surfaces, opts)
}

func TestGenerate_ZeroDensity(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t))
	if _, err := f.generate(t, Options{Density: 0, Seed: 1}); !errors.Is(err, apperr.ErrInsufficientSample) {
		t.Errorf("err = %v, want ErrInsufficientSample", err)
	}
}

func TestGenerate_MinSamples(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t))
	if _, err := f.generate(t, Options{Density: 5, Seed: 1, MinSamples: 6}); !errors.Is(err, apperr.ErrInsufficientSample) {
		t.Errorf("err = %v, want ErrInsufficientSample", err)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t))
	opts := Options{Density: 25, Seed: 42, Workers: 4}
	a, err := f.generate(t, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	opts.Workers = 1
	b, err := f.generate(t, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !slices.Equal(a.Transport.Data, b.Transport.Data) {
		t.Error("transport index differs between runs with the same seed")
	}
	if !slices.Equal(a.Samples, b.Samples) {
		t.Error("samples differ between runs with the same seed")
	}
}

func TestGenerate_Rasters(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t))
	m, err := f.generate(t, Options{Density: 30, Seed: 7})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for name, r := range map[string]*raster.Raster{
		"removal_effic": m.RemovalEffic, "loading_idx": m.Loading,
		"transport_idx": m.Transport, "delivery_idx": m.Delivery,
	} {
		if err := f.data.Grid.Match(r.Grid); err != nil {
			t.Errorf("%s: %v", name, err)
		}
		for i, v := range r.Data {
			if !raster.IsNoData(v) && (v < 0 || v > 100) {
				t.Fatalf("%s cell %d = %v outside [0,100]", name, i, v)
			}
		}
	}
	for i := range m.Delivery.Data {
		l, tr, d := m.Loading.Data[i], m.Transport.Data[i], m.Delivery.Data[i]
		if raster.IsNoData(l) {
			continue
		}
		if math.Abs(d-l*tr/100) > 1e-9 {
			t.Fatalf("cell %d delivery %v != %v*%v/100", i, d, l, tr)
		}
	}

	lake := f.surfaces.Lakes[testutil.LakeID].RemovalPct
	if v, _ := m.RemovalEffic.At(raster.Cell{Row: 5, Col: 9}); v != lake {
		t.Errorf("lake cell removal_effic = %v, want %v", v, lake)
	}
	stream := f.surfaces.Network[testutil.UpperStream].RemovalPct
	if v, _ := m.RemovalEffic.At(raster.Cell{Row: 0, Col: 9}); v != stream {
		t.Errorf("stream cell removal_effic = %v, want %v", v, stream)
	}
	if v, _ := m.RemovalEffic.At(raster.Cell{Row: 5, Col: 0}); v != 100 {
		t.Errorf("hydric cell removal_effic = %v, want 100", v)
	}
	if v, _ := m.Loading.At(raster.Cell{Row: 5, Col: 9}); v != 0 {
		t.Errorf("open water loading = %v, want 0", v)
	}
}

func TestGenerate_ExcludesUntraceableSamples(t *testing.T) {
	p := testutil.Watershed(t)
	for r := 0; r < p.Grid.Rows; r++ {
		p.FlowDir.Set(raster.Cell{Row: r, Col: 0}, 0)
	}
	f := newFixture(t, p)
	var calls atomic.Int64
	m, err := f.generate(t, Options{Density: 1000, Seed: 3, Progress: func(done, total int) { calls.Add(1) }})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if m.Stats.Drawn != 96 {
		t.Errorf("drawn = %d, want 96 eligible cells", m.Stats.Drawn)
	}
	if m.Stats.Excluded != 10 {
		t.Errorf("excluded = %d, want 10", m.Stats.Excluded)
	}
	if calls.Load() != 96 {
		t.Errorf("progress calls = %d, want 96", calls.Load())
	}
}

func TestGenerate_Cancelled(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Generate(ctx, f.data, f.tracer, f.surfaces, Options{Density: 10, Seed: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestStratify(t *testing.T) {
	g := testutil.Grid
	eligible := make([]bool, g.Len())
	for i := range eligible {
		eligible[i] = g.CellAt(i).Col != 3
	}
	pts := stratify(g, eligible, 17, 99)
	if len(pts) != 17 {
		t.Fatalf("points = %d, want 17", len(pts))
	}
	seen := map[raster.Cell]bool{}
	for _, p := range pts {
		if p.Cell.Col == 3 {
			t.Errorf("ineligible cell %v sampled", p.Cell)
		}
		if seen[p.Cell] {
			t.Errorf("cell %v sampled twice", p.Cell)
		}
		seen[p.Cell] = true
		if c, ok := g.CellOf(p.X, p.Y); !ok || c != p.Cell {
			t.Errorf("point (%v, %v) outside its cell %v", p.X, p.Y, p.Cell)
		}
	}
	if again := stratify(g, eligible, 17, 99); !slices.Equal(pts, again) {
		t.Error("same seed drew different points")
	}
	if other := stratify(g, eligible, 17, 100); slices.Equal(pts, other) {
		t.Error("different seeds drew identical points")
	}
	if got := stratify(g, make([]bool, g.Len()), 5, 1); got != nil {
		t.Errorf("no eligible cells drew %d points", len(got))
	}
}

func TestInterpolator(t *testing.T) {
	ip := newInterpolator([]sample{{x: 0, y: 0, v: 10}, {x: 10, y: 0, v: 30}}, 12, 2)
	if got := ip.At(0, 0); got != 10 {
		t.Errorf("at sample = %v, want 10", got)
	}
	if got := ip.At(5, 0); math.Abs(got-20) > 1e-9 {
		t.Errorf("midpoint = %v, want 20", got)
	}
	near := ip.At(1, 0)
	if !(near > 10 && near < 20) {
		t.Errorf("near first sample = %v, want in (10, 20)", near)
	}
}
