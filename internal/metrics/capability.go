package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapabilitiesMinted tracks successful mints.
	CapabilitiesMinted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "minted_total",
			Help:      "Total number of capabilities minted",
		},
	)

	// CapabilitiesRevoked tracks revocations.
	CapabilitiesRevoked = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "revoked_total",
			Help:      "Total number of capabilities revoked",
		},
	)

	// CapabilitiesExpired tracks the count of capabilities transitioned
	// to expired by each sweep.
	CapabilitiesExpired = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "expired_total",
			Help:      "Total number of capabilities transitioned to expired by the sweep",
		},
	)

	// CapabilityValidations tracks token validation checks by outcome.
	CapabilityValidations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "validations_total",
			Help:      "Total number of capability token validations by outcome",
		},
		[]string{"result"}, // valid, expired, revoked, not_found
	)

	// PermissionChecks tracks CheckPermission calls by grant/deny.
	PermissionChecks = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "permission_checks_total",
			Help:      "Total number of permission checks by outcome",
		},
		[]string{"result"}, // granted, denied
	)
)
