package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track("replenish:schedule").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("replenish:schedule").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("replenish:schedule", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("replenish:schedule", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("replenish:schedule")))
	require.Greater(t, testutil.ToFloat64(metrics.lastSuccess.WithLabelValues("replenish:schedule")), 0.0)
}

func TestStageCounters(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.AddWrites("demand", 3)
	metrics.AddWrites("demand", 0)
	metrics.AddSkipped("in-transit", 2)

	require.Equal(t, 3.0, testutil.ToFloat64(metrics.writes.WithLabelValues("demand")))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.skipped.WithLabelValues("in-transit")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.AddWrites("demand", 1)
	require.NoError(t, metrics.Track("x").End(nil))
}
