package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Observe("books", "post", "ok", 5*time.Millisecond)
	c.Observe("books", "post", "ok", 7*time.Millisecond)
	c.Observe("books", "post", "error", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.operations.WithLabelValues("books", "post", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.operations.WithLabelValues("books", "post", "error")))

	count, err := testutil.GatherAndCount(reg, "strata_engine_operations_total", "strata_engine_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Observe("books", "get", "ok", time.Millisecond)
	})
}
