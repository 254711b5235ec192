package network

import (
	"fmt"
	"iter"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/models"
)

// Walker follows preferred segments downstream. It is lazy and single use:
// once Next returns false the walk is over and Err reports why.
type Walker struct {
	g       *Graph
	node    int64
	visited map[int64]struct{}
	cur     models.StreamSegment
	err     error
	done    bool
}

// DownstreamFrom starts a walk at node.
func (g *Graph) DownstreamFrom(node int64) *Walker {
	return &Walker{g: g, node: node, visited: map[int64]struct{}{node: {}}}
}

// Next advances to the next segment. It returns false at the outlet or when
// the walk revisits a node.
func (w *Walker) Next() bool {
	if w.done {
		return false
	}
	seg, ok := w.g.Next(w.node)
	if !ok {
		w.done = true
		return false
	}
	if _, seen := w.visited[seg.ToNode]; seen {
		w.done = true
		w.err = fmt.Errorf("network: segment %d returns to node %d: %w", seg.COMID, seg.ToNode, apperr.ErrCycleDetected)
		return false
	}
	w.visited[seg.ToNode] = struct{}{}
	w.node = seg.ToNode
	w.cur = seg
	return true
}

// Segment returns the segment reached by the last successful Next.
func (w *Walker) Segment() models.StreamSegment { return w.cur }

// Err returns the error that ended the walk, if any.
func (w *Walker) Err() error { return w.err }

// All drains the walker. Check Err after the loop.
func (w *Walker) All() iter.Seq[models.StreamSegment] {
	return func(yield func(models.StreamSegment) bool) {
		for w.Next() {
			if !yield(w.cur) {
				return
			}
		}
	}
}
