// Package metrics provides Prometheus metrics collection for catwalk.
//
// All metrics are optional - if not initialized, components use no-op
// implementations that have zero overhead.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	walkMetrics := metrics.NewWalkMetrics("hfsplus")
//	stats, err := walker.Walk(fs, root, flags, v, walker.WithMetrics(walkMetrics))
//
//	// Dump for the node_exporter textfile collector
//	metrics.WriteTextfile("/var/lib/node_exporter/catwalk.prom")
//
// A one-shot command usually ends before a scrape, so the registry is
// exported as a textfile when the run ends. Server exposes it over HTTP
// while the run lasts.
package metrics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all catwalk metrics
	// Protected by registryOnce for write-once, read-many pattern
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// It's safe to call multiple times - subsequent calls are ignored. If not
// called, GetRegistry() returns nil and every constructor returns a no-op
// implementation.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format. It is a no-op when metrics are disabled.
func WriteTextfile(path string) error {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// register adds c to the registry, returning the collector already
// registered under the same descriptor when a constructor runs twice.
func register[C prometheus.Collector](reg *prometheus.Registry, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
