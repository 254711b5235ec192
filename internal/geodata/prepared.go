// Package geodata holds the prepared watershed layers and the spatial indices
// built over them.
package geodata

import (
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
)

// Prepared is every layer of one HUC12, already clipped and aligned to Grid.
type Prepared struct {
	HUC        string
	Grid       raster.Grid
	Boundary   *geom.Polygon
	Streams    []models.StreamSegment
	Flow       map[int64]models.FlowRecord
	Lakes      []models.Lake
	Morphology map[int64]models.LakeMorphology
	Soils      []models.HydricSoilUnit
	FlowDir    *raster.Raster
	LandCover  *raster.Raster
	Impervious *raster.Raster
}

// Validate is the single consistency gate for a dataset: every raster must
// share Grid, the boundary must be a polygon and ids must be unique.
func (p *Prepared) Validate() error {
	if err := p.Grid.Validate(); err != nil {
		return fmt.Errorf("geodata: %w", err)
	}
	layers := []struct {
		name string
		r    *raster.Raster
	}{
		{"flow direction", p.FlowDir},
		{"land cover", p.LandCover},
		{"impervious", p.Impervious},
	}
	for _, l := range layers {
		if l.r == nil {
			return fmt.Errorf("geodata: %s raster: %w", l.name, apperr.ErrMissingAttribute)
		}
		if err := p.Grid.Match(l.r.Grid); err != nil {
			return fmt.Errorf("geodata: %s raster: %w", l.name, err)
		}
		if len(l.r.Data) != p.Grid.Len() {
			return fmt.Errorf("geodata: %s raster has %d cells: %w", l.name, len(l.r.Data), apperr.ErrGridMismatch)
		}
	}
	if p.Boundary == nil || p.Boundary.NumLinearRings() == 0 {
		return fmt.Errorf("geodata: watershed boundary: %w", apperr.ErrMissingAttribute)
	}

	seen := make(map[int64]struct{}, len(p.Streams))
	for _, s := range p.Streams {
		if _, dup := seen[s.COMID]; dup {
			return fmt.Errorf("geodata: duplicate stream comid %d: %w", s.COMID, apperr.ErrInconsistentTopology)
		}
		seen[s.COMID] = struct{}{}
		if s.Geometry == nil || s.Geometry.NumCoords() < 2 {
			return fmt.Errorf("geodata: stream %d geometry: %w", s.COMID, apperr.ErrMissingAttribute)
		}
	}
	lakes := make(map[int64]struct{}, len(p.Lakes))
	for _, l := range p.Lakes {
		if _, dup := lakes[l.COMID]; dup {
			return fmt.Errorf("geodata: duplicate lake comid %d: %w", l.COMID, apperr.ErrInconsistentTopology)
		}
		lakes[l.COMID] = struct{}{}
		if l.Geometry == nil {
			return fmt.Errorf("geodata: lake %d geometry: %w", l.COMID, apperr.ErrMissingAttribute)
		}
	}
	for _, s := range p.Soils {
		if s.HydricPct < 0 || s.HydricPct > 100 {
			return fmt.Errorf("geodata: soil unit %d hydric pct %v outside [0,100]: %w", s.MUKEY, s.HydricPct, apperr.ErrMissingAttribute)
		}
	}
	return nil
}

// Stream returns the segment with comid.
func (p *Prepared) Stream(comid int64) (models.StreamSegment, bool) {
	for _, s := range p.Streams {
		if s.COMID == comid {
			return s, true
		}
	}
	return models.StreamSegment{}, false
}

// Lake returns the lake with comid.
func (p *Prepared) Lake(comid int64) (models.Lake, bool) {
	for _, l := range p.Lakes {
		if l.COMID == comid {
			return l, true
		}
	}
	return models.Lake{}, false
}

// InWatershed reports whether (x, y) lies inside the boundary or on its edge.
func (p *Prepared) InWatershed(x, y float64) bool {
	return InPolygon(p.Boundary, x, y)
}

// WatershedMask returns, per cell, whether the cell centre is in the watershed.
func (p *Prepared) WatershedMask() []bool {
	mask := make([]bool, p.Grid.Len())
	for i := range mask {
		x, y := p.Grid.Center(p.Grid.CellAt(i))
		mask[i] = p.InWatershed(x, y)
	}
	return mask
}
