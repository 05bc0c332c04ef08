package metrics

import (
	"time"

	"github.com/marmos91/catwalk/pkg/walker"
	"github.com/prometheus/client_golang/prometheus"
)

// walkMetrics is the Prometheus implementation of walker.Metrics.
type walkMetrics struct {
	fsType       string
	entriesTotal *prometheus.CounterVec
	skippedTotal *prometheus.CounterVec
	walksTotal   *prometheus.CounterVec
	walkDuration *prometheus.HistogramVec
}

// NewWalkMetrics creates a Prometheus-backed walker.Metrics.
//
// Parameters:
//   - fsType: Filesystem format (e.g., "hfsplus"), used as a label
//
// Returns nil if metrics are not enabled, which makes the walker use its
// built-in no-op implementation.
func NewWalkMetrics(fsType string) walker.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &walkMetrics{
		fsType: fsType,
		entriesTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catwalk_walk_entries_total",
				Help: "Total number of directory entries emitted by kind",
			},
			[]string{"fs_type", "kind"},
		)),
		skippedTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catwalk_walk_skipped_total",
				Help: "Total number of records or subtrees left out of walks by reason",
			},
			[]string{"fs_type", "reason"},
		)),
		walksTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catwalk_walks_total",
				Help: "Total number of walks by outcome",
			},
			[]string{"fs_type", "outcome"},
		)),
		walkDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "catwalk_walk_duration_seconds",
				Help: "Duration of walks in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					1,     // 1s
					10,    // 10s
					60,    // 1m
					600,   // 10m
				},
			},
			[]string{"fs_type", "outcome"},
		)),
	}
}

func (m *walkMetrics) RecordEntry(kind string) {
	m.entriesTotal.WithLabelValues(m.fsType, kind).Inc()
}

func (m *walkMetrics) RecordSkipped(reason string) {
	m.skippedTotal.WithLabelValues(m.fsType, reason).Inc()
}

func (m *walkMetrics) RecordWalk(outcome string, duration time.Duration) {
	m.walksTotal.WithLabelValues(m.fsType, outcome).Inc()
	m.walkDuration.WithLabelValues(m.fsType, outcome).Observe(duration.Seconds())
}
