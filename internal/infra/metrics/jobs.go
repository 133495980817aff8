package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsIngestedTotal, jobsDedupSkippedTotal, jobStatusTransitionsTotal)
}

var jobsIngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_ingested_total",
		Help: "New job records admitted into the pipeline, labeled by source.",
	},
	[]string{"source"},
)

var jobsDedupSkippedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_dedup_skipped_total",
		Help: "Candidates dropped because their id was already processed.",
	},
	[]string{"source"},
)

var jobStatusTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "job_status_transitions_total",
		Help: "Committed status transitions, labeled by edge.",
	},
	[]string{"from", "to"},
)

func IncIngested(source string) {
	jobsIngestedTotal.WithLabelValues(norm(source)).Inc()
}

func IncDedupSkipped(source string) {
	jobsDedupSkippedTotal.WithLabelValues(norm(source)).Inc()
}

func IncTransition(from, to string) {
	jobStatusTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}
