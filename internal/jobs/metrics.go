// Package jobmetrics instruments replenishment stage runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	writes      *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	} else {
		t.metrics.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddWrites counts store writes performed by a stage.
func (m *Metrics) AddWrites(stage string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.writes.WithLabelValues(stage).Add(float64(count))
}

// AddSkipped counts rows a stage dropped as unusable.
func (m *Metrics) AddSkipped(stage string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.skipped.WithLabelValues(stage).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replenish_jobs_total",
		Help: "Total stage executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replenish_jobs_failures_total",
		Help: "Total failures observed for replenishment stages.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replenish_job_duration_seconds",
		Help:    "Duration in seconds of stage executions.",
		Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"job"})
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replenish_stage_writes_total",
		Help: "Rows written by each stage.",
	}, []string{"stage"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replenish_stage_skipped_total",
		Help: "Upstream rows skipped as unusable by each stage.",
	}, []string{"stage"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "replenish_stage_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per job.",
	}, []string{"job"})
	registerer.MustRegister(runs, failures, duration, writes, skipped, lastSuccess)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		writes:      writes,
		skipped:     skipped,
		lastSuccess: lastSuccess,
	}
}
