package flowpath

import (
	"github.com/twpayne/go-geom"

	"github.com/USEPA-clone/nsink/internal/models"
)

// Line returns the path as a polyline: the start point, overland cell
// centres, then the vertices of every network segment.
func (t *Tracer) Line(path *models.FlowPath) *geom.LineString {
	x, y := path.Start()
	coords := []geom.Coord{{x, y}}
	push := func(c geom.Coord) {
		if last := coords[len(coords)-1]; last[0] == c[0] && last[1] == c[1] {
			return
		}
		coords = append(coords, c)
	}
	for _, seg := range path.Segments() {
		var comid int64
		switch s := seg.(type) {
		case models.OverlandCell:
			cx, cy := t.data.Grid.Center(s.Cell)
			push(geom.Coord{cx, cy})
			continue
		case models.StreamHop:
			comid = s.COMID
		case models.LakeHop:
			comid = s.COMID
		}
		if s, ok := t.graph.Segment(comid); ok && s.Geometry != nil {
			for i := range s.Geometry.NumCoords() {
				c := s.Geometry.Coord(i)
				push(geom.Coord{c.X(), c.Y()})
			}
		}
	}
	if len(coords) == 1 {
		coords = append(coords, coords[0])
	}
	return geom.NewLineString(geom.XY).MustSetCoords(coords)
}
