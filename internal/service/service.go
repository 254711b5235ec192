// Package service coordinates the layer store and the removal model behind
// the API, MCP and CLI entry points.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/USEPA-clone/nsink/internal/apperr"
	"github.com/USEPA-clone/nsink/internal/flowpath"
	"github.com/USEPA-clone/nsink/internal/geodata"
	"github.com/USEPA-clone/nsink/internal/lookup"
	"github.com/USEPA-clone/nsink/internal/metrics"
	"github.com/USEPA-clone/nsink/internal/models"
	"github.com/USEPA-clone/nsink/internal/network"
	"github.com/USEPA-clone/nsink/internal/removal"
	"github.com/USEPA-clone/nsink/internal/sse"
	"github.com/USEPA-clone/nsink/internal/staticmap"
	"github.com/USEPA-clone/nsink/internal/store"
)

// Publisher receives service events. *sse.Broker satisfies it.
type Publisher interface {
	Publish(event sse.Event)
	PublishProgress(run string, done, total int)
}

type nopPublisher struct{}

func (nopPublisher) Publish(sse.Event)                {}
func (nopPublisher) PublishProgress(string, int, int) {}

// Options configure the model built from the stored dataset.
type Options struct {
	Removal  removal.Params
	Trace    flowpath.Options
	Sampling staticmap.Options
	Loading  *lookup.Table
	Logger   *slog.Logger
	Events   Publisher
}

// Model is an immutable snapshot of one loaded dataset and everything
// derived from it. Queries hold a *Model for their whole duration.
type Model struct {
	Data     *geodata.Prepared
	Graph    *network.Graph
	Surfaces *removal.Surfaces
	Tracer   *flowpath.Tracer
	Checksum string
	LoadedAt time.Time
}

// BuildModel validates data and derives the graph, removal surfaces and
// tracer.
func BuildModel(data *geodata.Prepared, params removal.Params, trace flowpath.Options) (*Model, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	graph, err := network.Build(data.Streams, data.Flow, data.Lakes)
	if err != nil {
		return nil, err
	}
	if err := graph.CheckAcyclic(); err != nil {
		return nil, err
	}
	surfaces, err := removal.Compute(data, params)
	if err != nil {
		return nil, err
	}
	return &Model{
		Data:     data,
		Graph:    graph,
		Surfaces: surfaces,
		Tracer:   flowpath.NewTracer(data, graph, trace),
		LoadedAt: time.Now().UTC(),
	}, nil
}

// NetworkRows returns the per-segment removal ordered by COMID.
func (m *Model) NetworkRows() []models.NetworkRemoval {
	rows := make([]models.NetworkRemoval, 0, len(m.Surfaces.Network))
	for _, id := range slices.Sorted(maps.Keys(m.Surfaces.Network)) {
		rows = append(rows, m.Surfaces.Network[id])
	}
	return rows
}

// Service serves queries against the current model snapshot.
type Service struct {
	store  store.LayerStore
	opts   Options
	logger *slog.Logger
	events Publisher

	model  atomic.Pointer[Model]
	loadMu sync.Mutex
}

// New creates a service. Call Reload before serving queries.
func New(st store.LayerStore, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = nopPublisher{}
	}
	if opts.Loading == nil {
		opts.Loading = lookup.Default()
	}
	return &Service{store: st, opts: opts, logger: opts.Logger, events: opts.Events}
}

// Ready reports whether a dataset is loaded.
func (s *Service) Ready() bool { return s.model.Load() != nil }

// Model returns the current snapshot, or ErrNotFound when nothing is loaded.
func (s *Service) Model() (*Model, error) {
	m := s.model.Load()
	if m == nil {
		return nil, fmt.Errorf("service: no dataset loaded: %w", apperr.ErrNotFound)
	}
	return m, nil
}

// Reload rebuilds the model from the store when the stored layers changed.
// It reports whether a new snapshot was installed. On failure the previous
// snapshot stays in place.
func (s *Service) Reload(_ context.Context) (bool, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	sum, err := s.store.DatasetChecksum()
	if err != nil {
		metrics.DatasetReloads.WithLabelValues("error").Inc()
		return false, err
	}
	if cur := s.model.Load(); cur != nil && cur.Checksum == sum {
		metrics.DatasetReloads.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	start := time.Now()
	data, err := s.store.LoadPrepared()
	if err != nil {
		metrics.DatasetReloads.WithLabelValues("error").Inc()
		return false, err
	}
	m, err := BuildModel(data, s.opts.Removal, s.opts.Trace)
	if err != nil {
		metrics.DatasetReloads.WithLabelValues("error").Inc()
		return false, err
	}
	m.Checksum = sum
	if err := s.store.SaveNetworkRemoval(m.NetworkRows()); err != nil {
		s.logger.Warn("save network removal failed", slog.String("error", err.Error()))
	}

	s.model.Store(m)
	metrics.DatasetReloads.WithLabelValues("loaded").Inc()
	metrics.DatasetSegments.Set(float64(m.Graph.Len()))
	s.logger.Info("dataset loaded",
		slog.String("huc", data.HUC),
		slog.Int("segments", m.Graph.Len()),
		slog.Int("lakes", len(data.Lakes)),
		slog.Int("soil_units", len(data.Soils)),
		slog.String("checksum", sum),
		slog.Duration("elapsed", time.Since(start)))
	s.events.Publish(sse.Event{Type: sse.TypeDatasetReloaded, Data: map[string]any{
		"huc":      data.HUC,
		"checksum": sum,
	}})
	return true, nil
}

// Import validates data, stores it and reloads.
func (s *Service) Import(ctx context.Context, data *geodata.Prepared) error {
	if err := data.Validate(); err != nil {
		return err
	}
	if err := s.store.SavePrepared(data); err != nil {
		return err
	}
	_, err := s.Reload(ctx)
	return err
}

// ReloadOrLog is a watcher callback: it reloads and logs failures.
func (s *Service) ReloadOrLog(ctx context.Context) {
	if _, err := s.Reload(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("dataset reload failed", slog.String("error", err.Error()))
	}
}
