// Package metrics instruments engine operations with Prometheus counters and
// histograms. A nil collector is valid and records nothing, so the engine
// runs unmetered by default.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records per-operation outcomes.
type Collector struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewCollector creates a collector registered against the given registerer.
// Pass nil to use the default Prometheus registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Collector{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "strata",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total number of engine operations",
			},
			[]string{"resource", "operation", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "strata",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Engine operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource", "operation"},
		),
	}
}

// Observe records one finished operation.
func (c *Collector) Observe(resource, operation, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.operations.WithLabelValues(resource, operation, status).Inc()
	c.duration.WithLabelValues(resource, operation).Observe(elapsed.Seconds())
}
