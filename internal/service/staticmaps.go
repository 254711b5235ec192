package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/metrics"
	"github.com/USEPA-clone/nsink/internal/raster"
	"github.com/USEPA-clone/nsink/internal/sse"
	"github.com/USEPA-clone/nsink/internal/staticmap"
	"github.com/USEPA-clone/nsink/internal/store"
)

// Static map raster names.
const (
	MapRemovalEffic = "removal_effic"
	MapLoading      = "loading_idx"
	MapTransport    = "transport_idx"
	MapDelivery     = "delivery_idx"
)

// MapNames lists the rasters stored with every run.
var MapNames = []string{MapRemovalEffic, MapLoading, MapTransport, MapDelivery}

// StaticMapRequest overrides the configured sampling density and seed. A nil
// field keeps the configured value; an explicit zero is used as given.
type StaticMapRequest struct {
	Density *int    `json:"density,omitempty"`
	Seed    *uint64 `json:"seed,omitempty"`
}

// GenerateStaticMaps samples the current model, builds the four static maps
// and persists them as a run.
func (s *Service) GenerateStaticMaps(ctx context.Context, req StaticMapRequest) (*store.Run, error) {
	m, err := s.Model()
	if err != nil {
		return nil, err
	}
	opts := s.opts.Sampling
	if req.Density != nil {
		if *req.Density < 0 {
			return nil, fmt.Errorf("service: density %d: %w", *req.Density, apperr.ErrInsufficientSample)
		}
		opts.Density = *req.Density
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	opts.Loading = s.opts.Loading
	opts.Logger = s.logger

	token := uuid.NewString()
	opts.Progress = func(done, total int) { s.events.PublishProgress(token, done, total) }
	s.events.Publish(sse.Event{Type: sse.TypeStaticMapsStarted, Data: map[string]any{
		"run": token, "density": opts.Density, "seed": opts.Seed,
	}})
	s.logger.Info("static maps started",
		slog.String("run", token), slog.Int("density", opts.Density), slog.Uint64("seed", opts.Seed))

	start := time.Now()
	maps, err := staticmap.Generate(ctx, m.Data, m.Tracer, m.Surfaces, opts)
	elapsed := time.Since(start)
	metrics.StaticMapDuration.Observe(elapsed.Seconds())
	if err != nil {
		s.events.Publish(sse.Event{Type: sse.TypeStaticMapsFinished, Data: map[string]any{
			"run": token, "error": err.Error(),
		}})
		return nil, err
	}
	metrics.StaticMapSamples.WithLabelValues(metrics.OutcomeOK).Add(float64(maps.Stats.Used))
	metrics.StaticMapSamples.WithLabelValues(metrics.OutcomeExcluded).Add(float64(maps.Stats.Excluded))

	run := &store.Run{
		Density:         opts.Density,
		Seed:            opts.Seed,
		DatasetChecksum: m.Checksum,
		Drawn:           maps.Stats.Drawn,
		Used:            maps.Stats.Used,
		Excluded:        maps.Stats.Excluded,
		Mean:            maps.Stats.Mean,
		StdDev:          maps.Stats.StdDev,
		Min:             maps.Stats.Min,
		Max:             maps.Stats.Max,
		Duration:        elapsed,
		Rasters: map[string]*raster.Raster{
			MapRemovalEffic: maps.RemovalEffic,
			MapLoading:      maps.Loading,
			MapTransport:    maps.Transport,
			MapDelivery:     maps.Delivery,
		},
	}
	for _, r := range maps.Samples {
		run.Samples = append(run.Samples, store.Sample{X: r.X, Y: r.Y, Row: r.Cell.Row, Col: r.Cell.Col, Removal: r.Removal})
	}
	if _, err := s.store.SaveStaticMapRun(run); err != nil {
		s.events.Publish(sse.Event{Type: sse.TypeStaticMapsFinished, Data: map[string]any{
			"run": token, "error": err.Error(),
		}})
		return nil, err
	}

	s.logger.Info("static maps finished",
		slog.String("run", token), slog.Int64("id", run.ID), slog.Duration("elapsed", elapsed))
	s.events.Publish(sse.Event{Type: sse.TypeStaticMapsFinished, Data: map[string]any{
		"run": token, "id": run.ID, "stats": maps.Stats,
	}})
	return run, nil
}

// Runs lists stored static map runs, newest first.
func (s *Service) Runs(_ context.Context) ([]store.Run, error) {
	return s.store.ListRuns()
}

// RunRaster loads one stored static map.
func (s *Service) RunRaster(_ context.Context, id int64, name string) (*raster.Raster, error) {
	return s.store.LoadRunRaster(id, name)
}

// RunSamples loads the traced sample points of a run.
func (s *Service) RunSamples(_ context.Context, id int64) ([]store.Sample, error) {
	return s.store.RunSamples(id)
}
