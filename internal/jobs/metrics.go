// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Metrics holds the collectors shared by every job handler.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	expired     prometheus.Counter
	now         func() time.Time
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	return register(prometheus.DefaultRegisterer)
})

// NewMetrics registers job collectors on reg. A nil reg shares one set of
// collectors on the default registerer across the process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return defaultMetrics()
	}
	return register(reg)
}

func register(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_jobs_total",
			Help: "Job runs by job name and outcome.",
		}, []string{"job", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_jobs_failures_total",
			Help: "Failed job runs by job name.",
		}, []string{"job"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "access_job_duration_seconds",
			Help:    "Wall time of one job run.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "access_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "access_associations_expired_total",
			Help: "Associations moved to INACTIVE because their end date passed.",
		}),
		now: time.Now,
	}
	reg.MustRegister(m.runs, m.failures, m.latency, m.lastSuccess, m.expired)
	return m
}

// Tracker measures a single job run. The zero value and a Tracker from a nil
// Metrics are valid and record nothing.
type Tracker struct {
	m       *Metrics
	job     string
	started time.Time
}

// Track starts measuring a run of job.
func (m *Metrics) Track(job string) *Tracker {
	t := &Tracker{m: m, job: job}
	if m != nil {
		t.started = m.now()
	}
	return t
}

// End records the run outcome and hands err back to the caller.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil || t.job == "" {
		return err
	}
	now := t.m.now()
	t.m.latency.WithLabelValues(t.job).Observe(now.Sub(t.started).Seconds())
	if err != nil {
		t.m.runs.WithLabelValues(t.job, outcomeFailed).Inc()
		t.m.failures.WithLabelValues(t.job).Inc()
		return err
	}
	t.m.runs.WithLabelValues(t.job, outcomeOK).Inc()
	t.m.lastSuccess.WithLabelValues(t.job).Set(float64(now.Unix()))
	return nil
}

// AddExpired counts associations closed by the expiry sweep.
func (m *Metrics) AddExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}
