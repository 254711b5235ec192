// Package network builds the directed stream graph and walks it downstream.
package network

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/models"
)

// Graph indexes on-network segments by their from/to nodes.
type Graph struct {
	segments  map[int64]models.StreamSegment
	qcms      map[int64]float64
	preferred map[int64]int64   // from node -> chosen outgoing comid
	outgoing  map[int64][]int64 // from node -> every outgoing comid
	incoming  map[int64][]int64 // to node -> every incoming comid
	lakes     map[int64][]int64 // lake comid -> member segments
}

// Build indexes every on-network segment. flow supplies QCMS for braid
// resolution; a segment without a flow record ranks as zero flow. Segments
// that reference an unknown lake are rejected.
func Build(streams []models.StreamSegment, flow map[int64]models.FlowRecord, lakes []models.Lake) (*Graph, error) {
	known := make(map[int64]struct{}, len(lakes))
	for _, l := range lakes {
		known[l.COMID] = struct{}{}
	}
	g := &Graph{
		segments:  make(map[int64]models.StreamSegment),
		qcms:      make(map[int64]float64),
		preferred: make(map[int64]int64),
		outgoing:  make(map[int64][]int64),
		incoming:  make(map[int64][]int64),
		lakes:     make(map[int64][]int64),
	}
	for _, s := range streams {
		if s.OffNetwork {
			continue
		}
		if s.FromNode == s.ToNode {
			return nil, fmt.Errorf("network: segment %d loops on node %d: %w", s.COMID, s.FromNode, apperr.ErrCycleDetected)
		}
		if s.InLake() {
			if _, ok := known[s.LakeCOMID]; !ok {
				return nil, fmt.Errorf("network: segment %d references lake %d: %w", s.COMID, s.LakeCOMID, apperr.ErrInconsistentTopology)
			}
			g.lakes[s.LakeCOMID] = append(g.lakes[s.LakeCOMID], s.COMID)
		}
		g.segments[s.COMID] = s
		g.qcms[s.COMID] = flow[s.COMID].QCMS
		g.outgoing[s.FromNode] = append(g.outgoing[s.FromNode], s.COMID)
		g.incoming[s.ToNode] = append(g.incoming[s.ToNode], s.COMID)
	}
	for node, ids := range g.outgoing {
		slices.SortFunc(ids, g.rank)
		g.preferred[node] = ids[0]
	}
	for _, ids := range g.incoming {
		slices.Sort(ids)
	}
	for _, ids := range g.lakes {
		slices.Sort(ids)
	}
	return g, nil
}

// rank orders braid candidates: larger flow, then larger stream order, then
// lower COMID.
func (g *Graph) rank(a, b int64) int {
	if c := cmp.Compare(g.qcms[b], g.qcms[a]); c != 0 {
		return c
	}
	sa, sb := g.segments[a], g.segments[b]
	if c := cmp.Compare(sb.StreamOrder, sa.StreamOrder); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// Len returns the number of on-network segments.
func (g *Graph) Len() int { return len(g.segments) }

// Segment returns the on-network segment with comid.
func (g *Graph) Segment(comid int64) (models.StreamSegment, bool) {
	s, ok := g.segments[comid]
	return s, ok
}

// Next returns the preferred segment leaving node.
func (g *Graph) Next(node int64) (models.StreamSegment, bool) {
	id, ok := g.preferred[node]
	if !ok {
		return models.StreamSegment{}, false
	}
	return g.segments[id], true
}

// Braids returns the nodes with more than one outgoing segment.
func (g *Graph) Braids() []int64 {
	var out []int64
	for node, ids := range g.outgoing {
		if len(ids) > 1 {
			out = append(out, node)
		}
	}
	slices.Sort(out)
	return out
}

// Incoming returns the segments ending at node.
func (g *Graph) Incoming(node int64) []models.StreamSegment {
	return g.collect(g.incoming[node])
}

// LakeSegments returns the segments inside lake, ordered by COMID.
func (g *Graph) LakeSegments(lake int64) []models.StreamSegment {
	return g.collect(g.lakes[lake])
}

// Upstream returns every segment that drains into node, nearest first.
func (g *Graph) Upstream(node int64) []models.StreamSegment {
	var out []models.StreamSegment
	seen := map[int64]bool{node: true}
	queue := []int64{node}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, s := range g.Incoming(n) {
			out = append(out, s)
			if !seen[s.FromNode] {
				seen[s.FromNode] = true
				queue = append(queue, s.FromNode)
			}
		}
	}
	return out
}

// Outlets returns the segments whose to node has no outgoing segment.
func (g *Graph) Outlets() []models.StreamSegment {
	var ids []int64
	for id, s := range g.segments {
		if _, ok := g.preferred[s.ToNode]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return g.collect(ids)
}

// CheckAcyclic verifies the whole network, braids included, has no cycle.
func (g *Graph) CheckAcyclic() error {
	dg := simple.NewDirectedGraph()
	for _, id := range slices.Sorted(maps.Keys(g.segments)) {
		s := g.segments[id]
		dg.SetEdge(simple.Edge{F: simple.Node(s.FromNode), T: simple.Node(s.ToNode)})
	}
	if _, err := topo.Sort(dg); err != nil {
		var u topo.Unorderable
		if errors.As(err, &u) {
			return fmt.Errorf("network: %d cyclic component(s): %w", len(u), apperr.ErrCycleDetected)
		}
		return fmt.Errorf("network: %w", err)
	}
	return nil
}

func (g *Graph) collect(ids []int64) []models.StreamSegment {
	out := make([]models.StreamSegment, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.segments[id])
	}
	return out
}
