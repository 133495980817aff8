package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(stageLatencySeconds, stageErrorsTotal, pipelineRunsTotal)
}

var stageLatencySeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pipeline_stage_latency_seconds",
		Help:    "Wall time of one stage executor run.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	},
	[]string{"stage", "success"},
)

var stageErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_stage_errors_total",
		Help: "Stage executor failures by severity class.",
	},
	[]string{"stage", "class"},
)

var pipelineRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Ingestion runs by source and final status.",
	},
	[]string{"source", "status"}, // status: 'completed', 'failed'
)

func ObserveStage(stage string, seconds float64, success bool) {
	stageLatencySeconds.WithLabelValues(norm(stage), strconv.FormatBool(success)).Observe(seconds)
}

func IncStageError(stage, class string) {
	stageErrorsTotal.WithLabelValues(norm(stage), norm(class)).Inc()
}

func IncRun(source, status string) {
	pipelineRunsTotal.WithLabelValues(norm(source), norm(status)).Inc()
}
