package network

import (
	"errors"
	"slices"
	"testing"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/testutil"
)

func seg(comid, from, to int64, order int) models.StreamSegment {
	return models.StreamSegment{COMID: comid, FromNode: from, ToNode: to, StreamOrder: order}
}

func comids(segs []models.StreamSegment) []int64 {
	out := make([]int64, 0, len(segs))
	for _, s := range segs {
		out = append(out, s.COMID)
	}
	return out
}

func fixtureGraph(t *testing.T) *Graph {
	t.Helper()
	p := testutil.Watershed(t)
	g, err := Build(p.Streams, p.Flow, p.Lakes)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestBuild_Fixture(t *testing.T) {
	g := fixtureGraph(t)
	if g.Len() != 4 {
		t.Fatalf("Len = %d, want 4", g.Len())
	}
	if _, ok := g.Segment(testutil.Canal); ok {
		t.Error("off-network canal is in the graph")
	}
	if got := comids(g.Outlets()); !slices.Equal(got, []int64{testutil.LowerStream}) {
		t.Errorf("Outlets = %v", got)
	}
	if got := comids(g.LakeSegments(testutil.LakeID)); !slices.Equal(got, []int64{testutil.LakeUpper, testutil.LakeLower}) {
		t.Errorf("LakeSegments = %v", got)
	}
	want := []int64{testutil.LowerStream, testutil.LakeLower, testutil.LakeUpper, testutil.UpperStream}
	if got := comids(g.Upstream(testutil.OutletNode)); !slices.Equal(got, want) {
		t.Errorf("Upstream = %v, want %v", got, want)
	}
	if err := g.CheckAcyclic(); err != nil {
		t.Errorf("CheckAcyclic: %v", err)
	}
}

func TestDownstreamFrom(t *testing.T) {
	g := fixtureGraph(t)
	w := g.DownstreamFrom(1)
	var got []int64
	for s := range w.All() {
		got = append(got, s.COMID)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("walk: %v", err)
	}
	want := []int64{testutil.UpperStream, testutil.LakeUpper, testutil.LakeLower, testutil.LowerStream}
	if !slices.Equal(got, want) {
		t.Errorf("walk = %v, want %v", got, want)
	}
	if w.Next() {
		t.Error("exhausted walker advanced again")
	}
}

func TestDownstreamFrom_Outlet(t *testing.T) {
	g := fixtureGraph(t)
	w := g.DownstreamFrom(testutil.OutletNode)
	if w.Next() {
		t.Errorf("walk from outlet yielded %d", w.Segment().COMID)
	}
	if w.Err() != nil {
		t.Errorf("Err = %v", w.Err())
	}
}

func TestBraidTieBreak(t *testing.T) {
	cases := []struct {
		name string
		flow map[int64]models.FlowRecord
		a, b models.StreamSegment
		want int64
	}{
		{
			name: "larger flow",
			flow: map[int64]models.FlowRecord{20: {QCMS: 1}, 21: {QCMS: 2}},
			a:    seg(20, 1, 2, 3), b: seg(21, 1, 3, 1),
			want: 21,
		},
		{
			name: "larger order",
			flow: map[int64]models.FlowRecord{20: {QCMS: 1}, 21: {QCMS: 1}},
			a:    seg(20, 1, 2, 3), b: seg(21, 1, 3, 1),
			want: 20,
		},
		{
			name: "lowest comid",
			flow: map[int64]models.FlowRecord{20: {QCMS: 1}, 21: {QCMS: 1}},
			a:    seg(21, 1, 2, 2), b: seg(20, 1, 3, 2),
			want: 20,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := Build([]models.StreamSegment{tc.a, tc.b}, tc.flow, nil)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			s, ok := g.Next(1)
			if !ok || s.COMID != tc.want {
				t.Errorf("preferred = %d, want %d", s.COMID, tc.want)
			}
			if got := g.Braids(); !slices.Equal(got, []int64{1}) {
				t.Errorf("Braids = %v", got)
			}
		})
	}
}

func TestCycleDetected(t *testing.T) {
	streams := []models.StreamSegment{seg(1, 1, 2, 1), seg(2, 2, 3, 1), seg(3, 3, 1, 1)}
	g, err := Build(streams, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	w := g.DownstreamFrom(1)
	n := 0
	for range w.All() {
		n++
		if n > len(streams) {
			t.Fatal("walker did not terminate")
		}
	}
	if !errors.Is(w.Err(), apperr.ErrCycleDetected) {
		t.Errorf("walk err = %v, want ErrCycleDetected", w.Err())
	}
	if err := g.CheckAcyclic(); !errors.Is(err, apperr.ErrCycleDetected) {
		t.Errorf("CheckAcyclic = %v, want ErrCycleDetected", err)
	}
}

func TestBuild_Errors(t *testing.T) {
	if _, err := Build([]models.StreamSegment{seg(1, 4, 4, 1)}, nil, nil); !errors.Is(err, apperr.ErrCycleDetected) {
		t.Errorf("self loop: err = %v", err)
	}
	s := seg(1, 1, 2, 1)
	s.LakeCOMID = 77
	if _, err := Build([]models.StreamSegment{s}, nil, nil); !errors.Is(err, apperr.ErrInconsistentTopology) {
		t.Errorf("unknown lake: err = %v", err)
	}
}

func TestAll_StopsEarly(t *testing.T) {
	g := fixtureGraph(t)
	w := g.DownstreamFrom(1)
	for s := range w.All() {
		if s.COMID != testutil.UpperStream {
			t.Fatalf("first = %d", s.COMID)
		}
		break
	}
	if !w.Next() || w.Segment().COMID != testutil.LakeUpper {
		t.Error("walker should resume after an early break")
	}
}
