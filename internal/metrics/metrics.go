// Package metrics provides Prometheus metrics for the simulation engine.
//
//   - pkddi_oracle_requests_total: Counter with outcome label (success, error, unavailable, cached)
//   - pkddi_oracle_request_duration_seconds: Histogram of single oracle attempts
//   - pkddi_cache_lookups_total: Counter with cache and result labels
//   - pkddi_simulations_total: Counter with operation and degraded labels
//
// All metrics are registered with the Prometheus default registry during package initialization.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OracleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkddi_oracle_requests_total",
			Help: "Total oracle completion requests by outcome",
		},
		[]string{"outcome"},
	)

	OracleRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pkddi_oracle_request_duration_seconds",
			Help:    "Oracle attempt latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkddi_cache_lookups_total",
			Help: "Cache lookups by cache name and result",
		},
		[]string{"cache", "result"},
	)

	SimulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pkddi_simulations_total",
			Help: "Completed engine operations",
		},
		[]string{"operation", "degraded"},
	)
)

// Oracle outcomes
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomeCached      = "cached"
)

func init() {
	prometheus.MustRegister(OracleRequestsTotal)
	prometheus.MustRegister(OracleRequestDuration)
	prometheus.MustRegister(CacheLookupsTotal)
	prometheus.MustRegister(SimulationsTotal)
}

// RecordCacheLookup counts a hit or miss on the named cache
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordSimulation counts a completed engine operation
func RecordSimulation(operation string, degraded bool) {
	SimulationsTotal.WithLabelValues(operation, strconv.FormatBool(degraded)).Inc()
}
