package metrics

import (
	"time"

	"github.com/marmos91/catwalk/pkg/image/s3"
	"github.com/prometheus/client_golang/prometheus"
)

// s3ImageMetrics is the Prometheus implementation of s3.Metrics.
type s3ImageMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	bytesTotal      prometheus.Counter
	cacheTotal      *prometheus.CounterVec
}

// NewS3ImageMetrics creates a Prometheus-backed s3.Metrics.
//
// Returns nil if metrics are not enabled, which causes the S3 image source
// to use its built-in no-op implementation.
func NewS3ImageMetrics() s3.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &s3ImageMetrics{
		requestsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catwalk_s3_requests_total",
				Help: "Total number of S3 requests by operation and status",
			},
			[]string{"operation", "status"},
		)),
		requestDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "catwalk_s3_request_duration_seconds",
				Help: "Duration of S3 requests in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1,     // 1s
					5,     // 5s
				},
			},
			[]string{"operation"},
		)),
		bytesTotal: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catwalk_s3_read_bytes_total",
				Help: "Total bytes fetched from S3",
			},
		)),
		cacheTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catwalk_s3_block_cache_total",
				Help: "Block cache lookups by result",
			},
			[]string{"result"},
		)),
	}
}

func (m *s3ImageMetrics) ObserveRequest(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.requestsTotal.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *s3ImageMetrics) RecordBytes(n int64) {
	m.bytesTotal.Add(float64(n))
}

func (m *s3ImageMetrics) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}
