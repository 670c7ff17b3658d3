package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InstancesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "event_instances_created_total",
			Help: "Total number of materialized event instances",
		},
	)

	ParticipationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "event_participations_created_total",
			Help: "Total number of created participations",
		},
	)

	SelectionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exercise_selection_failures_total",
			Help: "Total number of selections aborted because a rule had no eligible exercise",
		},
	)

	SelectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exercise_selection_duration_seconds",
			Help:    "Duration of template rule evaluation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
		},
	)

	AssessmentsComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessments_computed_total",
			Help: "Total number of computed assessment slot scores by outcome",
		},
		[]string{"outcome"},
	)

	OverridesSet = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_overrides_set_total",
			Help: "Total number of manual score override writes",
		},
	)

	CodeExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_executions_total",
			Help: "Total number of finished code execution jobs by status",
		},
		[]string{"status"},
	)

	CodeExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "code_execution_duration_seconds",
			Help:    "Duration of successful code execution jobs",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

func Init() {
	prometheus.MustRegister(InstancesCreated)
	prometheus.MustRegister(ParticipationsCreated)
	prometheus.MustRegister(SelectionFailures)
	prometheus.MustRegister(SelectionDuration)
	prometheus.MustRegister(AssessmentsComputed)
	prometheus.MustRegister(OverridesSet)
	prometheus.MustRegister(CodeExecutions)
	prometheus.MustRegister(CodeExecutionDuration)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
