package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutcomesRecorded tracks recorded outcomes by outcome_type.
	OutcomesRecorded = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reputation",
			Name:      "outcomes_recorded_total",
			Help:      "Total number of outcomes recorded by outcome type",
		},
		[]string{"outcome_type"},
	)

	// OverallScore tracks each agent's current overall_score.
	OverallScore = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reputation",
			Name:      "overall_score",
			Help:      "Current overall_score per agent",
		},
		[]string{"agent_id"},
	)

	// DowngradesDetected tracks ShouldDowngrade calls that returned true.
	DowngradesDetected = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reputation",
			Name:      "downgrades_detected_total",
			Help:      "Total number of ShouldDowngrade checks that returned true",
		},
	)
)
