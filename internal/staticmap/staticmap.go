// Package staticmap builds watershed-wide removal, loading, transport and
// delivery rasters from sampled flow paths.
package staticmap

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/flowpath"
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/lookup"
	"github.com/USEPA-clone/nsink/internal/raster"
	"github.com/USEPA-clone/nsink/internal/removal"
)

// Options controls sampling and interpolation.
type Options struct {
	Density    int
	Seed       uint64
	Workers    int
	MinSamples int
	Power      float64
	Neighbors  int
	Loading    *lookup.Table
	// Progress, when set, is called from worker goroutines after each sample.
	Progress func(done, total int)
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.MinSamples < 1 {
		o.MinSamples = 1
	}
	if !(o.Power > 0) {
		o.Power = 2
	}
	if o.Neighbors <= 0 {
		o.Neighbors = 12
	}
	if o.Loading == nil {
		o.Loading = lookup.Default()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// SampleResult is the cumulative removal traced from one sample point.
type SampleResult struct {
	Point
	Removal float64 `json:"removal"`
}

// Stats summarises the successful samples.
type Stats struct {
	Drawn    int     `json:"drawn"`
	Used     int     `json:"used"`
	Excluded int     `json:"excluded"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// Maps holds the four output rasters, all on the dataset grid.
type Maps struct {
	RemovalEffic *raster.Raster
	Loading      *raster.Raster
	Transport    *raster.Raster
	Delivery     *raster.Raster
	Samples      []SampleResult
	Stats        Stats
}

// Generate samples start points, traces and summarizes each on a bounded
// worker pool, and interpolates the results over the watershed.
func Generate(ctx context.Context, data *geodata.Prepared, tracer *flowpath.Tracer, surfaces *removal.Surfaces, opts Options) (*Maps, error) {
	opts = opts.withDefaults()
	g := data.Grid
	mask := data.WatershedMask()

	eligible := make([]bool, len(mask))
	for i, in := range mask {
		if !in {
			continue
		}
		lc, ok := data.LandCover.At(g.CellAt(i))
		eligible[i] = ok && !opts.Loading.IsWater(lc)
	}
	points := stratify(g, eligible, opts.Density, opts.Seed)

	removals := make([]float64, len(points))
	used := make([]bool, len(points))
	var done atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for i, p := range points {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			defer func() {
				if opts.Progress != nil {
					opts.Progress(int(done.Add(1)), len(points))
				}
			}()
			path, err := tracer.Trace(p.X, p.Y)
			if apperr.Skippable(err) {
				opts.Logger.Debug("sample excluded", "x", p.X, "y", p.Y, "error", err)
				return nil
			}
			if err != nil {
				return fmt.Errorf("staticmap: sample %d: %w", i, err)
			}
			rows, err := flowpath.Summarize(path, surfaces)
			if err != nil {
				return fmt.Errorf("staticmap: sample %d: %w", i, err)
			}
			removals[i] = flowpath.CumulativeRemoval(rows)
			used[i] = true
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var results []SampleResult
	var pts []sample
	var values []float64
	for i, p := range points {
		if !used[i] {
			continue
		}
		results = append(results, SampleResult{Point: p, Removal: removals[i]})
		pts = append(pts, sample{x: p.X, y: p.Y, v: removals[i]})
		values = append(values, removals[i])
	}
	if len(results) < opts.MinSamples {
		return nil, fmt.Errorf("staticmap: %d of %d samples traced (density %d), need %d: %w",
			len(results), len(points), opts.Density, opts.MinSamples, apperr.ErrInsufficientSample)
	}

	st := Stats{Drawn: len(points), Used: len(results), Excluded: len(points) - len(results)}
	st.Mean, st.StdDev = stat.MeanStdDev(values, nil)
	st.Min, st.Max = floats.Min(values), floats.Max(values)
	if len(values) == 1 {
		st.StdDev = 0
	}

	maps := &Maps{
		RemovalEffic: removalEffic(data, tracer, surfaces, mask),
		Loading:      raster.New(g),
		Transport:    raster.New(g),
		Delivery:     raster.New(g),
		Samples:      results,
		Stats:        st,
	}
	ip := newInterpolator(pts, opts.Neighbors, opts.Power)
	for i, in := range mask {
		if !in {
			continue
		}
		c := g.CellAt(i)
		transport := 100 - clamp(ip.At(g.Center(c)))
		maps.Transport.Data[i] = transport
		lc, ok := data.LandCover.At(c)
		if !ok {
			continue
		}
		class, ok := opts.Loading.Class(lc)
		if !ok {
			continue
		}
		maps.Loading.Data[i] = class.Load
		maps.Delivery.Data[i] = class.Load * transport / 100
	}

	opts.Logger.Info("static maps generated",
		"drawn", st.Drawn, "used", st.Used, "excluded", st.Excluded,
		"mean_removal", st.Mean, "min_removal", st.Min, "max_removal", st.Max)
	return maps, nil
}

// removalEffic burns network and lake removal onto the land removal raster.
func removalEffic(data *geodata.Prepared, tracer *flowpath.Tracer, s *removal.Surfaces, mask []bool) *raster.Raster {
	out := s.Rate.Clone()
	for c, hit := range tracer.Index().All() {
		if nr, ok := s.Network[hit.COMID]; ok && mask[data.Grid.Index(c)] {
			out.Set(c, nr.RemovalPct)
		}
	}
	for _, l := range data.Lakes {
		lr, ok := s.Lakes[l.COMID]
		if !ok {
			continue
		}
		for _, c := range geodata.CellsInPolygon(data.Grid, l.Geometry) {
			if mask[data.Grid.Index(c)] {
				out.Set(c, lr.RemovalPct)
			}
		}
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
