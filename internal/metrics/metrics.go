// Package metrics provides Prometheus metrics for the nsink service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK        = "ok"
	OutcomeNoPath    = "no_path"
	OutcomeOutOfArea = "out_of_bounds"
	OutcomeError     = "error"
	OutcomeExcluded  = "excluded"
)

var (
	// TracesTotal counts flow path traces by outcome.
	TracesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsink",
			Subsystem: "flowpath",
			Name:      "traces_total",
			Help:      "Total number of flow path traces by outcome",
		},
		[]string{"outcome"},
	)

	// StaticMapSamples counts static map sample points by outcome.
	StaticMapSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsink",
			Subsystem: "static_maps",
			Name:      "samples_total",
			Help:      "Total number of static map sample points by outcome",
		},
		[]string{"outcome"},
	)

	// StaticMapDuration tracks static map run duration in seconds.
	StaticMapDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nsink",
			Subsystem: "static_maps",
			Name:      "run_duration_seconds",
			Help:      "Duration of static map runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// DatasetReloads counts dataset reload attempts by result.
	DatasetReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nsink",
			Subsystem: "dataset",
			Name:      "reloads_total",
			Help:      "Total number of dataset reloads by result",
		},
		[]string{"result"},
	)

	// DatasetSegments reports the number of stream segments in the loaded dataset.
	DatasetSegments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nsink",
			Subsystem: "dataset",
			Name:      "segments",
			Help:      "Number of stream segments in the loaded dataset",
		},
	)
)
