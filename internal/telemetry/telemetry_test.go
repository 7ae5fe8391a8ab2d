package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_WithLabelValues_AccumulatesPerPartition(t *testing.T) {
	r := NewRegistry()
	c := r.Counter("files_processed_total", "result")
	c.WithLabelValues("ok")
	c.WithLabelValues("ok")
	c.WithLabelValues("error")

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap[labelKey([]string{"ok"})])
	assert.Equal(t, uint64(1), snap[labelKey([]string{"error"})])
}

func TestHistogram_Snapshot_TracksMinMaxAverage(t *testing.T) {
	r := NewRegistry()
	h := r.Histogram("scan_duration_seconds")
	h.Observe(1.0)
	h.Observe(3.0)
	h.Observe(2.0)

	snap := h.Snapshot()
	assert.Equal(t, uint64(3), snap.Count)
	assert.Equal(t, 1.0, snap.Min)
	assert.Equal(t, 3.0, snap.Max)
	assert.InDelta(t, 2.0, snap.Average, 0.0001)
}

func TestRegistry_ReturnsSameInstanceOnRepeatedLookup(t *testing.T) {
	r := NewRegistry()
	c1 := r.Counter("x")
	c2 := r.Counter("x")
	require.Same(t, c1, c2)
}

func TestRegistry_Snapshot_IncludesAllRegisteredMetrics(t *testing.T) {
	r := NewRegistry()
	r.Counter("a").WithLabelValues()
	r.Histogram("b").Observe(5)

	snap := r.Snapshot()
	require.Contains(t, snap.Counters, "a")
	require.Contains(t, snap.Histograms, "b")
}
