package flowpath

import (
	"errors"
	"slices"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/network"
	"github.com/USEPA-clone/nsink/internal/raster"
	"github.com/USEPA-clone/nsink/internal/removal"
	"github.com/USEPA-clone/nsink/internal/testutil"
)

type fixture struct {
	data     *geodata.Prepared
	tracer   *Tracer
	surfaces *removal.Surfaces
}

func newFixture(t *testing.T, p *geodata.Prepared, opts Options) fixture {
	t.Helper()
	g, err := network.Build(p.Streams, p.Flow, p.Lakes)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, err := removal.Compute(p, removal.DefaultParams())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return fixture{data: p, tracer: NewTracer(p, g, opts), surfaces: s}
}

func kinds(p *models.FlowPath) []models.SegmentKind {
	var out []models.SegmentKind
	for _, s := range p.Segments() {
		out = append(out, s.Kind())
	}
	return out
}

func TestTrace_OverlandThenNetwork(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t), Options{})
	path, err := f.tracer.Trace(55, 45)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	want := []models.SegmentKind{
		models.KindOverland, models.KindOverland, models.KindOverland, models.KindOverland,
		models.KindLake, models.KindLake, models.KindStream,
	}
	if got := kinds(path); !slices.Equal(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	if c := path.At(0).(models.OverlandCell).Cell; c != (raster.Cell{Row: 5, Col: 5}) {
		t.Errorf("first cell = %v", c)
	}
	if h := path.At(4).(models.LakeHop); h.COMID != testutil.LakeUpper || h.LakeCOMID != testutil.LakeID {
		t.Errorf("handoff = %+v", h)
	}
	if h := path.At(6).(models.StreamHop); h.COMID != testutil.LowerStream {
		t.Errorf("last hop = %+v", h)
	}
	for i, s := range path.Segments() {
		if s.Position() != i {
			t.Errorf("segment %d has position %d", i, s.Position())
		}
	}
}

func TestTrace_Deterministic(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t), Options{})
	a, err := f.tracer.Trace(32, 71)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	b, err := f.tracer.Trace(32, 71)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if !a.Equal(b) {
		t.Error("two traces from the same point differ")
	}
}

func TestTrace_StartOnStream(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t), Options{})
	path, err := f.tracer.Trace(95, 95)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if path.Len() != 4 || path.At(0).(models.StreamHop).COMID != testutil.UpperStream {
		t.Errorf("path = %v", kinds(path))
	}
}

func TestTrace_Boundary(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t), Options{})
	if _, err := f.tracer.Trace(0, 50); err != nil {
		t.Errorf("start on boundary edge: %v", err)
	}
	if _, err := f.tracer.Trace(-1, 50); !errors.Is(err, apperr.ErrOutOfBounds) {
		t.Errorf("start outside: err = %v, want ErrOutOfBounds", err)
	}
}

func TestTrace_NoFlowPath(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *geodata.Prepared)
		opts   Options
	}{
		{"sink", func(p *geodata.Prepared) { p.FlowDir.Set(raster.Cell{Row: 5, Col: 6}, 0) }, Options{}},
		{"nodata", func(p *geodata.Prepared) { p.FlowDir.Set(raster.Cell{Row: 5, Col: 6}, raster.NoData) }, Options{}},
		{"leaves raster", func(p *geodata.Prepared) {
			for r := 0; r < p.Grid.Rows; r++ {
				p.FlowDir.Set(raster.Cell{Row: r, Col: 5}, raster.North)
			}
		}, Options{}},
		{"loop", func(p *geodata.Prepared) { p.FlowDir.Set(raster.Cell{Row: 5, Col: 6}, raster.West) }, Options{}},
		{"max steps", func(*geodata.Prepared) {}, Options{MaxSteps: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testutil.Watershed(t)
			tc.mutate(p)
			f := newFixture(t, p, tc.opts)
			if _, err := f.tracer.Trace(55, 45); !errors.Is(err, apperr.ErrNoFlowPath) {
				t.Errorf("err = %v, want ErrNoFlowPath", err)
			}
		})
	}
}

func TestTrace_DiagonalWalkMeetsDiagonalStream(t *testing.T) {
	streams := map[string]*geom.LineString{
		"crosses cells":  testutil.Line(0, 1, 99, 100),
		"crosses corner": testutil.Line(0, 0, 100, 100),
	}
	for name, line := range streams {
		t.Run(name, func(t *testing.T) {
			p := testutil.Watershed(t)
			for i := range p.FlowDir.Data {
				p.FlowDir.Data[i] = raster.SouthEast
			}
			p.Streams = []models.StreamSegment{{COMID: 1, Geometry: line, FromNode: 1, ToNode: 2, StreamOrder: 1, FType: models.FTypeStream}}
			p.Flow = map[int64]models.FlowRecord{1: {COMID: 1, TOTMA: 0.1, QCMS: 0.2}}
			p.Lakes, p.Morphology = nil, map[int64]models.LakeMorphology{}

			f := newFixture(t, p, Options{})
			path, err := f.tracer.Trace(5, 95)
			if err != nil {
				t.Fatalf("Trace: %v", err)
			}
			want := []models.SegmentKind{
				models.KindOverland, models.KindOverland, models.KindOverland, models.KindOverland,
				models.KindStream,
			}
			if got := kinds(path); !slices.Equal(got, want) {
				t.Fatalf("kinds = %v, want %v", got, want)
			}
			if h := path.At(4).(models.StreamHop); h.COMID != 1 {
				t.Errorf("handoff = %+v", h)
			}
		})
	}
}

func TestTrace_CycleDetected(t *testing.T) {
	p := testutil.Watershed(t)
	for i := range p.Streams {
		if p.Streams[i].COMID == testutil.LowerStream {
			p.Streams[i].ToNode = 1
		}
	}
	f := newFixture(t, p, Options{})
	if _, err := f.tracer.Trace(55, 45); !errors.Is(err, apperr.ErrCycleDetected) {
		t.Errorf("err = %v, want ErrCycleDetected", err)
	}
}

func TestSummarize_Fixture(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t), Options{})
	path, err := f.tracer.Trace(55, 45)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	rows, err := Summarize(path, f.surfaces)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}
	lake := rows[4]
	if lake.Kind != models.KindLake || !slices.Equal(lake.Merged, []int64{testutil.LakeUpper, testutil.LakeLower}) {
		t.Errorf("lake row = %+v", lake)
	}
	prev := 100.
	for _, r := range rows {
		if r.NOut > prev {
			t.Fatalf("n_out increased: %v after %v", r.NOut, prev)
		}
		if r.NOut < 0 || r.NOut > 100 {
			t.Fatalf("n_out %v outside [0,100]", r.NOut)
		}
		prev = r.NOut
	}
	lakePct := f.surfaces.Lakes[testutil.LakeID].RemovalPct
	streamPct := f.surfaces.Network[testutil.LowerStream].RemovalPct
	want := 100 - 100*(1-lakePct/100)*(1-streamPct/100)
	if got := CumulativeRemoval(rows); abs(got-want) > 1e-9 {
		t.Errorf("cumulative = %v, want %v", got, want)
	}
}

func TestSummarize_HydricCellNextToOutlet(t *testing.T) {
	p := testutil.Watershed(t)
	p.Soils = append([]models.HydricSoilUnit{{MUKEY: 1, Geometry: testutil.MultiRect(80, 0, 90, 10), HydricPct: 100}}, p.Soils...)
	f := newFixture(t, p, Options{})
	path, err := f.tracer.Trace(85, 5)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if got := kinds(path); !slices.Equal(got, []models.SegmentKind{models.KindOverland, models.KindStream}) {
		t.Fatalf("kinds = %v", got)
	}
	rows, err := Summarize(path, f.surfaces)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got := CumulativeRemoval(rows); got != 100 {
		t.Errorf("cumulative = %v, want 100", got)
	}
	if last := rows[len(rows)-1].NOut; last != 0 {
		t.Errorf("final n_out = %v, want 0", last)
	}
}

func TestSummarize_CollapsesLakeHops(t *testing.T) {
	s := &removal.Surfaces{
		Rate:    raster.New(testutil.Grid),
		Network: map[int64]models.NetworkRemoval{4: {COMID: 4, RemovalPct: 10}},
		Lakes: map[int64]models.LakeRemoval{
			900: {COMID: 900, RemovalPct: 50},
			901: {COMID: 901, RemovalPct: 20},
		},
	}
	path := models.NewFlowPath(0, 0, []models.PathSegment{
		models.LakeHop{Pos: 0, COMID: 1, LakeCOMID: 900},
		models.LakeHop{Pos: 1, COMID: 2, LakeCOMID: 900},
		models.LakeHop{Pos: 2, COMID: 3, LakeCOMID: 900},
		models.LakeHop{Pos: 3, COMID: 5, LakeCOMID: 901},
		models.StreamHop{Pos: 4, COMID: 4},
	})
	rows, err := Summarize(path, s)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if !slices.Equal(rows[0].Merged, []int64{1, 2, 3}) || rows[0].NOut != 50 {
		t.Errorf("lake row = %+v", rows[0])
	}
	if rows[1].LakeCOMID != 901 || rows[1].NOut != 40 {
		t.Errorf("second lake row = %+v", rows[1])
	}
	if abs(rows[2].NOut-36) > 1e-9 || rows[2].Position != 2 {
		t.Errorf("stream row = %+v", rows[2])
	}
}

func TestSummarize_EmptyPath(t *testing.T) {
	rows, err := Summarize(models.NewFlowPath(1, 2, nil), &removal.Surfaces{})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(rows) != 1 || rows[0].Kind != models.KindOutlet || rows[0].NOut != 100 {
		t.Fatalf("rows = %+v", rows)
	}
	if got := CumulativeRemoval(rows); got != 0 {
		t.Errorf("cumulative = %v, want 0", got)
	}
}

func TestSummarize_MissingRemoval(t *testing.T) {
	path := models.NewFlowPath(0, 0, []models.PathSegment{models.StreamHop{COMID: 42}})
	_, err := Summarize(path, &removal.Surfaces{Network: map[int64]models.NetworkRemoval{}})
	if !errors.Is(err, apperr.ErrMissingAttribute) {
		t.Errorf("err = %v, want ErrMissingAttribute", err)
	}
}

func TestLine(t *testing.T) {
	f := newFixture(t, testutil.Watershed(t), Options{})
	path, err := f.tracer.Trace(55, 45)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	ls := f.tracer.Line(path)
	if first := ls.Coord(0); first.X() != 55 || first.Y() != 45 {
		t.Errorf("line starts at %v", first)
	}
	if last := ls.Coord(ls.NumCoords() - 1); last.X() != 95 || last.Y() != 0 {
		t.Errorf("line ends at %v", last)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
