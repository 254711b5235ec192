// Package flowpath traces flow from a point to the watershed outlet and
// composes removal along the way.
package flowpath

import (
	"fmt"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/network"
	"github.com/USEPA-clone/nsink/internal/raster"
)

// Options bound the overland phase. Zero values take the defaults: a buffer
// of half a cell and one step per grid cell.
type Options struct {
	BufferDistance float64
	MaxSteps       int
}

func (o Options) withDefaults(g raster.Grid) Options {
	if !(o.BufferDistance > 0) {
		o.BufferDistance = g.CellSize / 2
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = g.Len()
	}
	return o
}

// Tracer holds the read-only inputs shared by every trace. It is safe for
// concurrent use.
type Tracer struct {
	data  *geodata.Prepared
	graph *network.Graph
	index *geodata.SegmentIndex
	opts  Options
}

// NewTracer builds the cell to segment index once for data.
func NewTracer(data *geodata.Prepared, graph *network.Graph, opts Options) *Tracer {
	opts = opts.withDefaults(data.Grid)
	return &Tracer{
		data:  data,
		graph: graph,
		index: geodata.NewSegmentIndex(data, opts.BufferDistance),
		opts:  opts,
	}
}

// Options returns the effective options.
func (t *Tracer) Options() Options { return t.opts }

// Index returns the cell to segment index.
func (t *Tracer) Index() *geodata.SegmentIndex { return t.index }

// Trace walks from (x, y) over the flow direction raster until it reaches an
// on-network segment, then follows the network to the outlet.
func (t *Tracer) Trace(x, y float64) (*models.FlowPath, error) {
	if !t.data.InWatershed(x, y) {
		return nil, fmt.Errorf("flowpath: start (%g, %g) outside watershed: %w", x, y, apperr.ErrOutOfBounds)
	}
	g := t.data.Grid
	cell, ok := g.CellOf(x, y)
	if !ok {
		return nil, fmt.Errorf("flowpath: start (%g, %g) outside grid: %w", x, y, apperr.ErrOutOfBounds)
	}

	var segs []models.PathSegment
	var handoff models.StreamSegment
	for steps := 0; ; steps++ {
		if hit, ok := t.index.Nearest(cell); ok {
			handoff, ok = t.graph.Segment(hit.COMID)
			if !ok {
				return nil, fmt.Errorf("flowpath: indexed segment %d not in graph: %w", hit.COMID, apperr.ErrInconsistentTopology)
			}
			break
		}
		if steps >= t.opts.MaxSteps {
			return nil, fmt.Errorf("flowpath: no stream within %d steps of (%g, %g): %w", t.opts.MaxSteps, x, y, apperr.ErrNoFlowPath)
		}
		segs = append(segs, models.OverlandCell{Pos: len(segs), Cell: cell})
		code, _ := t.data.FlowDir.At(cell)
		next, ok := raster.Downslope(cell, code)
		if !ok {
			return nil, fmt.Errorf("flowpath: sink at row %d col %d: %w", cell.Row, cell.Col, apperr.ErrNoFlowPath)
		}
		if !g.Contains(next) {
			return nil, fmt.Errorf("flowpath: flow leaves raster at row %d col %d: %w", cell.Row, cell.Col, apperr.ErrNoFlowPath)
		}
		cell = next
	}

	segs = append(segs, hop(handoff, len(segs)))
	w := t.graph.DownstreamFrom(handoff.ToNode)
	for s := range w.All() {
		if s.ToNode == handoff.FromNode {
			return nil, fmt.Errorf("flowpath: segment %d returns to node %d: %w", s.COMID, s.ToNode, apperr.ErrCycleDetected)
		}
		segs = append(segs, hop(s, len(segs)))
	}
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("flowpath: %w", err)
	}
	return models.NewFlowPath(x, y, segs), nil
}

func hop(s models.StreamSegment, pos int) models.PathSegment {
	if s.InLake() {
		return models.LakeHop{Pos: pos, COMID: s.COMID, LakeCOMID: s.LakeCOMID}
	}
	return models.StreamHop{Pos: pos, COMID: s.COMID}
}
