package walker

import (
	"time"

	"github.com/marmos91/catwalk/pkg/diag"
)

// DefaultMaxDepth bounds recursion. Entries at the limit are still emitted;
// their subdirectories are not entered.
const DefaultMaxDepth = 64

// Metrics observes walks. Implementations live in pkg/metrics; a nil
// Metrics disables collection.
type Metrics interface {
	// RecordEntry counts one emitted entry by kind ("dir", "reg", "dot").
	RecordEntry(kind string)

	// RecordSkipped counts one entry or subtree left out, by reason
	// ("malformed", "read", "cycle", "depth").
	RecordSkipped(reason string)

	// RecordWalk records a finished walk by outcome ("complete",
	// "stopped", "error").
	RecordWalk(outcome string, duration time.Duration)
}

type options struct {
	maxDepth   int
	state      *diag.State
	metrics    Metrics
	linearScan bool
}

func defaultOptions() options {
	return options{
		maxDepth: DefaultMaxDepth,
		state:    diag.Default,
		metrics:  noopMetrics{},
	}
}

// Option configures a walk.
type Option func(*options)

// WithMaxDepth overrides DefaultMaxDepth. Values below zero are treated as
// zero (no recursion below the start directory).
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = max(depth, 0)
	}
}

// WithState directs skip reports to state instead of diag.Default.
func WithState(state *diag.State) Option {
	return func(o *options) {
		if state != nil {
			o.state = state
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLinearScan ignores a filesystem's child index and scans the whole
// inode range for every directory.
func WithLinearScan() Option {
	return func(o *options) {
		o.linearScan = true
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordEntry(string)                {}
func (noopMetrics) RecordSkipped(string)              {}
func (noopMetrics) RecordWalk(string, time.Duration) {}
