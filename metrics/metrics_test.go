package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	m := New("packed")
	m.Signals.Set(160)
	m.Detectors.Set(5)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 5)
	for _, f := range families {
		require.Len(t, f.GetMetric(), 1)
		labels := f.GetMetric()[0].GetLabel()
		require.Len(t, labels, 1)
		assert.Equal(t, "strategy", labels[0].GetName())
		assert.Equal(t, "packed", labels[0].GetValue())
		if f.GetName() == "pacedetect_signals" {
			assert.Equal(t, 160.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestRegistriesAreIsolated(t *testing.T) {
	a := New("single")
	b := New("single")
	a.Changes.Inc()
	assert.Equal(t, uint64(1), a.Snapshot().Changes)
	assert.Zero(t, b.Snapshot().Changes)
}

func TestSnapshot(t *testing.T) {
	m := New("partitioned")
	for i := 0; i < 10; i++ {
		m.Changes.Inc()
		m.Detections.Inc()
	}
	for _, v := range []float64{1, 2, 2, 3, 3, 3, 5, 9, 20, 100} {
		m.Latency.Observe(v)
	}

	s := m.Snapshot()
	assert.Equal(t, uint64(10), s.Changes)
	assert.Equal(t, uint64(10), s.Detections)
	assert.InDelta(t, 14.8, s.LatencyMean, 1e-9)
	assert.Equal(t, 4.0, s.LatencyP50)
	assert.Equal(t, 32.0, s.LatencyP99)
}

func TestSnapshotEmpty(t *testing.T) {
	s := New("single").Snapshot()
	assert.Zero(t, s.Changes)
	assert.Zero(t, s.LatencyMean)
	assert.Zero(t, s.LatencyP99)
}
