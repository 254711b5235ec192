// Package removal computes nitrogen removal efficiencies for land, stream and
// lake sinks.
package removal

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/raster"
)

// OffNetworkPolicies chooses how each class of off-network feature treats
// the cells it crosses.
type OffNetworkPolicies struct {
	Lakes   models.OffNetworkPolicy
	Streams models.OffNetworkPolicy
	Canals  models.OffNetworkPolicy
}

// Params controls the land removal model.
type Params struct {
	HydricThreshold     float64
	ImperviousThreshold float64
	OffNetwork          OffNetworkPolicies
}

// DefaultParams returns majority-hydric thresholds with off-network lakes
// counted as removal and off-network streams and canals passed through.
func DefaultParams() Params {
	return Params{
		HydricThreshold:     50,
		ImperviousThreshold: 50,
		OffNetwork: OffNetworkPolicies{
			Lakes:   models.PolicyRemoval,
			Streams: models.PolicyPassThrough,
			Canals:  models.PolicyPassThrough,
		},
	}
}

// Surfaces is the output of Compute. Rate and Type are NoData outside the
// watershed; Type stores RemovalType codes.
type Surfaces struct {
	Rate    *raster.Raster
	Type    *raster.Raster
	Land    []models.LandRemoval
	Network map[int64]models.NetworkRemoval
	Lakes   map[int64]models.LakeRemoval
}

// CellRemoval returns the land removal rate at c, 0 for NoData.
func (s *Surfaces) CellRemoval(c raster.Cell) float64 {
	v, ok := s.Rate.At(c)
	if !ok {
		return 0
	}
	return v
}

// Compute derives every removal surface from p. p must have passed Validate.
func Compute(p *geodata.Prepared, params Params) (*Surfaces, error) {
	network, lakes, err := networkRemoval(p)
	if err != nil {
		return nil, err
	}
	rate, typ, land := landRemoval(p, params)
	return &Surfaces{Rate: rate, Type: typ, Land: land, Network: network, Lakes: lakes}, nil
}

func networkRemoval(p *geodata.Prepared) (map[int64]models.NetworkRemoval, map[int64]models.LakeRemoval, error) {
	members := make(map[int64][]models.StreamSegment)
	out := make(map[int64]models.NetworkRemoval, len(p.Streams))
	for _, s := range p.Streams {
		if s.OffNetwork {
			continue
		}
		f, ok := p.Flow[s.COMID]
		if !ok {
			return nil, nil, fmt.Errorf("removal: stream %d has no flow record: %w", s.COMID, apperr.ErrMissingAttribute)
		}
		if s.InLake() {
			members[s.LakeCOMID] = append(members[s.LakeCOMID], s)
			continue
		}
		pct, depth, k := StreamRemoval(f.TOTMA, f.QCMS, s.StreamOrder)
		out[s.COMID] = models.NetworkRemoval{
			COMID: s.COMID, RemovalPct: pct, Type: models.RemovalStream,
			Depth: depth, Decay: k, TOTMA: f.TOTMA, QCMS: f.QCMS,
		}
	}

	lakes := make(map[int64]models.LakeRemoval, len(members))
	for _, lakeID := range slices.Sorted(maps.Keys(members)) {
		segs := members[lakeID]
		if _, ok := p.Lake(lakeID); !ok {
			return nil, nil, fmt.Errorf("removal: stream %d references lake %d: %w", segs[0].COMID, lakeID, apperr.ErrInconsistentTopology)
		}
		m, ok := p.Morphology[lakeID]
		if !ok {
			return nil, nil, fmt.Errorf("removal: lake %d has no morphology: %w", lakeID, apperr.ErrMissingAttribute)
		}
		area, ok := m.SurfaceArea()
		if !ok {
			return nil, nil, fmt.Errorf("removal: lake %d morphology yields no surface area: %w", lakeID, apperr.ErrMissingAttribute)
		}
		var q float64
		ids := make([]int64, 0, len(segs))
		for _, s := range segs {
			q = max(q, p.Flow[s.COMID].QCMS)
			ids = append(ids, s.COMID)
		}
		slices.Sort(ids)
		pct, hl := LakeRemoval(q, area)
		lakes[lakeID] = models.LakeRemoval{
			COMID: lakeID, RemovalPct: pct, HydraulicLoad: hl,
			OutflowQCMS: q, SurfaceArea: area, MemberSegments: ids,
		}
		for _, s := range segs {
			f := p.Flow[s.COMID]
			out[s.COMID] = models.NetworkRemoval{
				COMID: s.COMID, LakeCOMID: lakeID, RemovalPct: pct, Type: models.RemovalLake,
				TOTMA: f.TOTMA, QCMS: f.QCMS,
			}
		}
	}
	return out, lakes, nil
}

func landRemoval(p *geodata.Prepared, params Params) (*raster.Raster, *raster.Raster, []models.LandRemoval) {
	g := p.Grid
	rate, typ := raster.New(g), raster.New(g)
	mask := p.WatershedMask()
	soil := geodata.SoilIndex(p)
	policy := offNetworkPolicy(p, params.OffNetwork)

	type acc struct {
		sum    float64
		n      int
		counts map[models.RemovalType]int
	}
	units := make([]acc, len(p.Soils))

	for i, in := range mask {
		if !in {
			continue
		}
		c := g.CellAt(i)
		var hydric float64
		if soil[i] >= 0 {
			hydric = p.Soils[soil[i]].HydricPct
		}
		base, t := 0., models.RemovalLandNone
		if hydric >= params.HydricThreshold {
			base, t = 100, models.RemovalLandHydric
		}
		switch policy[i] {
		case models.PolicyRemoval:
			base, t = 100, models.RemovalLandHydric
		case models.PolicyPassThrough:
			base, t = 0, models.RemovalLandNone
		}
		imp, _ := p.Impervious.At(c)
		imp = clamp(imp)
		v := base * (1 - imp/100)
		if imp >= params.ImperviousThreshold {
			t = models.RemovalLandImpervious
		}
		rate.Set(c, v)
		typ.Set(c, t.Code())

		if u := soil[i]; u >= 0 {
			if units[u].counts == nil {
				units[u].counts = make(map[models.RemovalType]int)
			}
			units[u].sum += v
			units[u].n++
			units[u].counts[t]++
		}
	}

	land := make([]models.LandRemoval, 0, len(p.Soils))
	for i, u := range p.Soils {
		a := units[i]
		lr := models.LandRemoval{MUKEY: u.MUKEY, HydricPct: u.HydricPct, Type: models.RemovalLandNone, Cells: a.n}
		if a.n > 0 {
			lr.RemovalPct = a.sum / float64(a.n)
			lr.Type = dominant(a.counts)
		}
		land = append(land, lr)
	}
	slices.SortFunc(land, func(a, b models.LandRemoval) int { return cmp.Compare(a.MUKEY, b.MUKEY) })
	return rate, typ, land
}

// offNetworkPolicy resolves the policy per cell; pass-through wins when
// features with different policies cross the same cell.
func offNetworkPolicy(p *geodata.Prepared, pol OffNetworkPolicies) map[int]models.OffNetworkPolicy {
	lakes, streams, canals := geodata.OffNetworkCells(p)
	out := make(map[int]models.OffNetworkPolicy)
	apply := func(cells []raster.Cell, v models.OffNetworkPolicy) {
		for _, c := range cells {
			i := p.Grid.Index(c)
			if out[i] == models.PolicyPassThrough {
				continue
			}
			out[i] = v
		}
	}
	apply(lakes, pol.Lakes)
	apply(streams, pol.Streams)
	apply(canals, pol.Canals)
	return out
}

func dominant(counts map[models.RemovalType]int) models.RemovalType {
	best, n := models.RemovalLandNone, -1
	for _, t := range []models.RemovalType{models.RemovalLandHydric, models.RemovalLandImpervious, models.RemovalLandNone} {
		if counts[t] > n {
			best, n = t, counts[t]
		}
	}
	return best
}
