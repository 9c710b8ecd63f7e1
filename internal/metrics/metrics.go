// Package metrics exposes the trust core's Prometheus series: event
// admission, capability lifecycle, reputation updates, and rate
// limiting, grounded on the teacher's internal/metrics package (same
// promauto-over-a-dedicated-Registry shape, same domain packages
// calling straight into counters/histograms rather than going through
// an intermediary collector).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trustcore"

// Registry is the dedicated registry every metric in this package is
// registered against, rather than the global prometheus.DefaultRegisterer,
// so a process embedding this package never collides with another
// component's series of the same name.
var Registry = prometheus.NewRegistry()

// Handler returns the HTTP handler serving Registry in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer starts a standalone metrics HTTP server bound to addr.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
