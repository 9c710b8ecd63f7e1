package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsAdmitted tracks admission pipeline outcomes by result
	// ("admitted", or the error kind: HASH_MISMATCH, SIGNATURE_INVALID,
	// CHAIN_BROKEN, ...).
	EventsAdmitted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_admitted_total",
			Help:      "Total number of event admission attempts by outcome",
		},
		[]string{"result"},
	)

	// EventAdmissionDuration tracks the admission pipeline's latency.
	EventAdmissionDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "admission_duration_seconds",
			Help:      "Event admission pipeline duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	// ChainVerifications tracks full chain verification runs by result.
	ChainVerifications = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "chain_verifications_total",
			Help:      "Total number of chain verification runs by result",
		},
		[]string{"result"}, // valid, invalid
	)
)
