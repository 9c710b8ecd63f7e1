package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RateLimitRejections tracks requests rejected by the limiter.
	RateLimitRejections = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	// RateLimitBuckets tracks the number of buckets currently tracked.
	RateLimitBuckets = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "buckets",
			Help:      "Number of rate limit buckets currently tracked",
		},
	)
)
