package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// New participants bound to a variant
	ExperimentAssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ab_experiment_assignments_total",
			Help: "Count of new experiment assignments by experiment and variant.",
		},
		[]string{"experiment", "variant"},
	)

	// Conversion calls that matched an assignment
	ExperimentConversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ab_experiment_conversions_total",
			Help: "Count of recorded conversions by experiment and variant.",
		},
		[]string{"experiment", "variant"},
	)

	ExperimentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ab_experiment_transitions_total",
			Help: "Count of lifecycle transitions by target status.",
		},
		[]string{"status"},
	)

	ResultsComputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ab_experiment_results_seconds",
		Help:    "Latency of aggregating and testing experiment results.",
		Buckets: prometheus.DefBuckets,
	})
)

var once sync.Once

func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			ExperimentAssignmentsTotal,
			ExperimentConversionsTotal,
			ExperimentTransitionsTotal,
			ResultsComputeDuration,
		)
	})
}
