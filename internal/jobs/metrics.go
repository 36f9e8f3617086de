package jobs

import "github.com/prometheus/client_golang/prometheus"

const subsystem = "job"

var (
	jobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger", Subsystem: subsystem, Name: "runs_total",
		Help: "Background job runs",
	}, []string{"job"})

	jobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger", Subsystem: subsystem, Name: "errors_total",
		Help: "Background job errors",
	}, []string{"job"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledger", Subsystem: subsystem, Name: "duration_seconds",
		Help:    "Background job duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	// jobLastSuccess — unix-время последнего успешного прогона, для алертов на зависший job.
	jobLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ledger", Subsystem: subsystem, Name: "last_success_timestamp_seconds",
		Help: "Unix time of the last successful run",
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(jobRuns, jobErrors, jobDuration, jobLastSuccess)
}
