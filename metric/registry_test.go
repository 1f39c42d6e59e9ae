package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scanbridge/errors"
)

func newTestCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scanbridge",
		Subsystem: "test",
		Name:      name,
	})
}

func TestRegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	err := registry.RegisterCounter("gateway", "frames_total", newTestCounter("frames_total"))
	require.NoError(t, err)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.RegisterCounter("gateway", "frames_total", newTestCounter("frames_total")))

	err := registry.RegisterCounter("gateway", "frames_total", newTestCounter("frames_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSameMetricNameDifferentComponents(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.RegisterGauge("gateway", "active", prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scanbridge", Subsystem: "gateway", Name: "active",
	})))

	// Same logical name under another component maps to a distinct
	// prometheus metric, so both registrations succeed.
	require.NoError(t, registry.RegisterGauge("scanjob", "active", prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scanbridge", Subsystem: "scanjob", Name: "active",
	})))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.RegisterCounter("gateway", "frames_total", newTestCounter("frames_total")))

	assert.True(t, registry.Unregister("gateway", "frames_total"))
	assert.False(t, registry.Unregister("gateway", "frames_total"))

	// Slot is free for re-registration after unregister.
	require.NoError(t, registry.RegisterCounter("gateway", "frames_total", newTestCounter("frames_total")))
}
