package perfmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTracksCountersAndAverage(t *testing.T) {
	m := New(time.Now())
	m.Observe("/api/devices", 10*time.Millisecond, true)
	m.Observe("/api/devices", 20*time.Millisecond, true)
	m.Observe("/api/devices", 30*time.Millisecond, false)

	s := m.Snapshot("/api/devices")
	assert.Equal(t, int64(3), s.Requests)
	assert.Equal(t, int64(2), s.Success)
	assert.Equal(t, int64(1), s.Errors)
	assert.InDelta(t, 20.0, s.AvgMs, 0.001)
}

func TestSnapshotP95RequiresAtLeastOneSample(t *testing.T) {
	m := New(time.Now())
	s := m.Snapshot("/api/unused")
	assert.Equal(t, int64(0), s.Requests)
	assert.Equal(t, 0.0, s.P95Ms)
}

func TestLatencyBufferCapsAtThousandSamples(t *testing.T) {
	m := New(time.Now())
	for i := 0; i < latencyBufferSize+100; i++ {
		m.Observe("/api/energy", time.Duration(i)*time.Millisecond, true)
	}
	s := m.Snapshot("/api/energy")
	assert.Equal(t, int64(latencyBufferSize+100), s.Requests)
	// average reflects only the most recent latencyBufferSize samples, not all observations
	assert.Greater(t, s.AvgMs, 50.0)
}

func TestResetClearsCounters(t *testing.T) {
	m := New(time.Now())
	m.Observe("/api/devices", time.Millisecond, true)
	m.Reset()
	s := m.Snapshot("/api/devices")
	assert.Equal(t, int64(0), s.Requests)
}

func TestRegistryExposeContainsRequiredMetrics(t *testing.T) {
	m := New(time.Now())
	m.Observe("/api/devices", 5*time.Millisecond, true)
	g := NewGauges()

	reg := NewRegistry(m, g)
	text, err := reg.Expose()
	require.NoError(t, err)

	for _, name := range []string{
		"smarthome_requests_total",
		"smarthome_requests_success",
		"smarthome_requests_errors",
		"smarthome_uptime_seconds",
		"smarthome_response_time_avg",
		"smarthome_response_time_p95",
		"smarthome_memory_heap_used",
		"smarthome_memory_heap_percent",
		"smarthome_cpu_usage_percent",
	} {
		assert.Contains(t, text, name)
	}
}
