package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurorawatch_provider_calls_total",
			Help: "Total upstream provider fetches",
		},
		[]string{"provider", "status"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aurorawatch_provider_latency_seconds",
			Help:    "Upstream provider fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurorawatch_cache_lookups_total",
			Help: "Provider cache lookups by result",
		},
		[]string{"provider", "result"},
	)

	SamplesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aurorawatch_samples_ingested_total",
			Help: "Total samples successfully stored",
		},
		[]string{"source"},
	)

	HoursScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aurorawatch_hours_scored_total",
			Help: "Total hourly sightability scores computed",
		},
	)

	GeomagneticScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aurorawatch_geomagnetic_score",
			Help: "Most recent blended global geomagnetic score (0-10)",
		},
	)

	GeomagneticStaleHours = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aurorawatch_geomagnetic_stale_hours",
			Help: "Age in hours of the newest blended geomagnetic input",
		},
	)
)
