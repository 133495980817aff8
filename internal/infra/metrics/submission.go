package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(submissionsTotal, submissionDurationSeconds, boostsTotal)
}

var submissionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "submissions_total",
		Help: "Submission attempts by outcome.",
	},
	[]string{"outcome"}, // 'submitted', 'failed', 'timeout'
)

var submissionDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "submission_duration_seconds",
		Help:    "Wall time of a driven submission attempt.",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
	},
)

var boostsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "boosts_total",
		Help: "Boost decisions taken during proposal generation.",
	},
	[]string{"decision"}, // 'boost', 'skip'
)

func IncSubmission(outcome string) {
	submissionsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveSubmission(seconds float64) {
	submissionDurationSeconds.Observe(seconds)
}

func IncBoost(boost bool) {
	if boost {
		boostsTotal.WithLabelValues("boost").Inc()
		return
	}
	boostsTotal.WithLabelValues("skip").Inc()
}
