package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(pollTicks, pollJobErrors, pollActiveJobs)
}

var (
	pollTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "poller_ticks_total",
			Help: "Reconciliation passes executed (timer ticks plus manual polls).",
		},
	)

	pollJobErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "poller_job_errors_total",
			Help: "Per-job polling failures; the job stays at its last known status.",
		},
	)

	pollActiveJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "poller_active_jobs",
			Help: "Active (non-terminal) jobs observed on the last pass.",
		},
	)
)

func IncPollTick()          { pollTicks.Inc() }
func IncPollJobError()      { pollJobErrors.Inc() }
func SetActiveJobs(n int)   { pollActiveJobs.Set(float64(n)) }
