package geocode

import "github.com/prometheus/client_golang/prometheus"

var (
	// cacheLookups counts cache lookups by kind (forward|reverse),
	// layer (l1|l2) and result (hit|miss|error).
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_cache_lookups_total",
			Help: "Geocode cache lookups by layer and result.",
		},
		[]string{"kind", "layer", "result"},
	)

	// providerCalls counts outbound provider calls by outcome
	// (ok|empty|timeout|rate_limited|quota|error).
	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_provider_calls_total",
			Help: "Outbound geocoding provider calls by outcome.",
		},
		[]string{"kind", "outcome"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocode_provider_duration_seconds",
			Help:    "Latency of outbound geocoding provider calls.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(cacheLookups, providerCalls, providerLatency)
}
