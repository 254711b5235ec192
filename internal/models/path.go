package models

import (
	"slices"

	"github.com/USEPA-clone/nsink/internal/raster"
)

// SegmentKind tags a PathSegment variant.
type SegmentKind string

const (
	KindOverland SegmentKind = "overland"
	KindStream   SegmentKind = "stream"
	KindLake     SegmentKind = "lake"
	KindOutlet   SegmentKind = "outlet"
)

// PathSegment is one step of a FlowPath: an OverlandCell, StreamHop or LakeHop.
type PathSegment interface {
	Kind() SegmentKind
	Position() int
	pathSegment()
}

// OverlandCell is a raster cell visited by the D8 walk.
type OverlandCell struct {
	Pos  int         `json:"position"`
	Cell raster.Cell `json:"cell"`
}

// StreamHop is a network segment outside any lake.
type StreamHop struct {
	Pos   int   `json:"position"`
	COMID int64 `json:"comid"`
}

// LakeHop is a network segment inside a lake.
type LakeHop struct {
	Pos       int   `json:"position"`
	COMID     int64 `json:"comid"`
	LakeCOMID int64 `json:"lake_comid"`
}

func (OverlandCell) Kind() SegmentKind { return KindOverland }
func (StreamHop) Kind() SegmentKind    { return KindStream }
func (LakeHop) Kind() SegmentKind      { return KindLake }

func (s OverlandCell) Position() int { return s.Pos }
func (s StreamHop) Position() int    { return s.Pos }
func (s LakeHop) Position() int      { return s.Pos }

func (OverlandCell) pathSegment() {}
func (StreamHop) pathSegment()    {}
func (LakeHop) pathSegment()      {}

// FlowPath is an immutable ordered walk from a start point to the outlet.
type FlowPath struct {
	startX, startY float64
	segments       []PathSegment
}

// NewFlowPath copies segs into a new path.
func NewFlowPath(x, y float64, segs []PathSegment) *FlowPath {
	return &FlowPath{startX: x, startY: y, segments: slices.Clone(segs)}
}

// Start returns the start coordinate.
func (p *FlowPath) Start() (x, y float64) { return p.startX, p.startY }

// Len returns the number of segments.
func (p *FlowPath) Len() int { return len(p.segments) }

// At returns the i-th segment.
func (p *FlowPath) At(i int) PathSegment { return p.segments[i] }

// Segments returns a copy of the ordered segments.
func (p *FlowPath) Segments() []PathSegment { return slices.Clone(p.segments) }

// Equal reports whether both paths have the same start and segments.
func (p *FlowPath) Equal(o *FlowPath) bool {
	if p.startX != o.startX || p.startY != o.startY {
		return false
	}
	return slices.Equal(p.segments, o.segments)
}

// FlowPathRemoval is one summarized row. Lake rows carry every merged
// segment; overland rows carry the cell.
type FlowPathRemoval struct {
	Position   int          `json:"position"`
	Kind       SegmentKind  `json:"kind"`
	Cell       *raster.Cell `json:"cell,omitempty"`
	COMID      int64        `json:"comid,omitempty"`
	LakeCOMID  int64        `json:"lake_comid,omitempty"`
	Merged     []int64      `json:"merged_comids,omitempty"`
	RemovalPct float64      `json:"removal_pct"`
	NOut       float64      `json:"n_out"`
}
