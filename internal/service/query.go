package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/flowpath"
	"github.com/USEPA-clone/nsink/internal/metrics"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
)

// TraceResult is a traced flow path with its removal summary.
type TraceResult struct {
	X                 float64                  `json:"x"`
	Y                 float64                  `json:"y"`
	Rows              []models.FlowPathRemoval `json:"rows"`
	CumulativeRemoval float64                  `json:"cumulative_removal"`
	Path              *models.FlowPath         `json:"-"`
	Line              *geom.LineString         `json:"-"`
}

// Trace traces from (x, y) to the outlet and summarizes removal along the way.
func (s *Service) Trace(_ context.Context, x, y float64) (*TraceResult, error) {
	m, err := s.Model()
	if err != nil {
		return nil, err
	}
	path, err := m.Tracer.Trace(x, y)
	if err != nil {
		metrics.TracesTotal.WithLabelValues(traceOutcome(err)).Inc()
		return nil, err
	}
	rows, err := flowpath.Summarize(path, m.Surfaces)
	if err != nil {
		metrics.TracesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	metrics.TracesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	return &TraceResult{
		X:                 x,
		Y:                 y,
		Rows:              rows,
		CumulativeRemoval: flowpath.CumulativeRemoval(rows),
		Path:              path,
		Line:              m.Tracer.Line(path),
	}, nil
}

func traceOutcome(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNoFlowPath):
		return metrics.OutcomeNoPath
	case errors.Is(err, apperr.ErrOutOfBounds):
		return metrics.OutcomeOutOfArea
	}
	return metrics.OutcomeError
}

// SegmentDetail is one stream segment with its attributes and removal.
type SegmentDetail struct {
	Segment    models.StreamSegment   `json:"segment"`
	Flow       *models.FlowRecord     `json:"flow,omitempty"`
	Removal    *models.NetworkRemoval `json:"removal,omitempty"`
	Downstream *int64                 `json:"downstream_comid,omitempty"`
	Upstream   []int64                `json:"upstream_comids,omitempty"`
}

// Segment returns a segment by COMID, on- or off-network.
func (s *Service) Segment(_ context.Context, comid int64) (*SegmentDetail, error) {
	m, err := s.Model()
	if err != nil {
		return nil, err
	}
	seg, ok := m.Data.Stream(comid)
	if !ok {
		return nil, fmt.Errorf("service: segment %d: %w", comid, apperr.ErrNotFound)
	}
	d := &SegmentDetail{Segment: seg}
	if f, ok := m.Data.Flow[comid]; ok {
		d.Flow = &f
	}
	if r, ok := m.Surfaces.Network[comid]; ok {
		d.Removal = &r
	}
	if !seg.OffNetwork {
		if next, ok := m.Graph.Next(seg.ToNode); ok {
			d.Downstream = &next.COMID
		}
		d.Upstream = comids(m.Graph.Upstream(seg.FromNode))
	}
	return d, nil
}

func comids(segs []models.StreamSegment) []int64 {
	var out []int64
	for _, s := range segs {
		out = append(out, s.COMID)
	}
	return out
}

// LakeDetail is one waterbody with its morphology and removal.
type LakeDetail struct {
	Lake       models.Lake            `json:"lake"`
	Morphology *models.LakeMorphology `json:"morphology,omitempty"`
	Removal    *models.LakeRemoval    `json:"removal,omitempty"`
	Segments   []int64                `json:"segment_comids"`
}

// Lake returns a waterbody by COMID.
func (s *Service) Lake(_ context.Context, comid int64) (*LakeDetail, error) {
	m, err := s.Model()
	if err != nil {
		return nil, err
	}
	l, ok := m.Data.Lake(comid)
	if !ok {
		return nil, fmt.Errorf("service: lake %d: %w", comid, apperr.ErrNotFound)
	}
	d := &LakeDetail{Lake: l, Segments: comids(m.Graph.LakeSegments(comid))}
	if d.Segments == nil {
		d.Segments = []int64{}
	}
	if mo, ok := m.Data.Morphology[comid]; ok {
		d.Morphology = &mo
	}
	if r, ok := m.Surfaces.Lakes[comid]; ok {
		d.Removal = &r
	}
	return d, nil
}

// Summary describes the loaded watershed.
type Summary struct {
	HUC          string                     `json:"huc"`
	Grid         raster.Grid                `json:"grid"`
	Checksum     string                     `json:"checksum"`
	LoadedAt     time.Time                  `json:"loaded_at"`
	Segments     int                        `json:"segments"`
	OffNetwork   int                        `json:"off_network_segments"`
	Lakes        int                        `json:"lakes"`
	SoilUnits    int                        `json:"soil_units"`
	Outlets      []int64                    `json:"outlets"`
	Braids       []int64                    `json:"braid_nodes,omitempty"`
	LandCells    map[models.RemovalType]int `json:"land_cells"`
	MeanLand     float64                    `json:"mean_land_removal"`
	LakeRemovals []models.LakeRemoval       `json:"lake_removal"`
}

// Summary returns counts and headline removal figures for the dataset.
func (s *Service) Summary(_ context.Context) (*Summary, error) {
	m, err := s.Model()
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		HUC:       m.Data.HUC,
		Grid:      m.Data.Grid,
		Checksum:  m.Checksum,
		LoadedAt:  m.LoadedAt,
		Segments:  m.Graph.Len(),
		Lakes:     len(m.Data.Lakes),
		SoilUnits: len(m.Data.Soils),
		Braids:    m.Graph.Braids(),
		LandCells: make(map[models.RemovalType]int),
	}
	for _, seg := range m.Data.Streams {
		if seg.OffNetwork {
			sum.OffNetwork++
		}
	}
	for _, o := range m.Graph.Outlets() {
		sum.Outlets = append(sum.Outlets, o.COMID)
	}
	var total float64
	var n int
	for i, v := range m.Surfaces.Rate.Data {
		if raster.IsNoData(v) {
			continue
		}
		total += v
		n++
		if t, ok := models.RemovalTypeFromCode(m.Surfaces.Type.Data[i]); ok {
			sum.LandCells[t]++
		}
	}
	if n > 0 {
		sum.MeanLand = total / float64(n)
	}
	for _, l := range m.Surfaces.Lakes {
		sum.LakeRemovals = append(sum.LakeRemovals, l)
	}
	slices.SortFunc(sum.LakeRemovals, func(a, b models.LakeRemoval) int { return cmp.Compare(a.COMID, b.COMID) })
	return sum, nil
}
