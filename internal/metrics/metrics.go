// Package metrics is the concrete observation sink referenced throughout
// spec.md as "the metrics sink" — process-scoped, initialized once during
// lifecycle startup (DESIGN NOTES "Global state") and passed explicitly
// into handlers rather than accessed as a hidden singleton. Registered
// the way go/runtime/proxy.go and go/network/metrics.go register their
// own prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sink bundles the counters and histograms the worker emits into. Tests
// construct their own Sink via New(prometheus.NewRegistry()) so repeated
// test runs don't collide on the default global registry.
type Sink struct {
	JobsStarted   prometheus.Counter
	JobsSucceeded prometheus.Counter
	JobsFailed    *prometheus.CounterVec // labeled by error kind
	ActiveJobs    prometheus.Gauge
	StageDuration *prometheus.HistogramVec // labeled by stage
	BrokerErrors  prometheus.Counter
}

// New registers and returns a fresh Sink against reg.
func New(reg prometheus.Registerer) *Sink {
	s := &Sink{
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vizwork_jobs_started_total",
			Help: "Total number of visualization jobs claimed from the broker.",
		}),
		JobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vizwork_jobs_succeeded_total",
			Help: "Total number of visualization jobs that published a success status.",
		}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vizwork_jobs_failed_total",
			Help: "Total number of visualization jobs that failed, labeled by error kind.",
		}, []string{"kind"}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vizwork_active_jobs",
			Help: "Number of job handlers currently in flight.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vizwork_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		BrokerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vizwork_broker_transient_errors_total",
			Help: "Total number of transient broker errors encountered during fetch.",
		}),
	}

	reg.MustRegister(s.JobsStarted, s.JobsSucceeded, s.JobsFailed, s.ActiveJobs, s.StageDuration, s.BrokerErrors)
	return s
}
