// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_requests_total",
			Help: "Total number of requests by terminal outcome",
		},
		[]string{"outcome"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_provider_calls_total",
			Help: "Total number of provider calls by provider and result",
		},
		[]string{"provider", "result"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of pipeline stages in seconds",
		},
		[]string{"stage"},
	)

	CritiqueRefinements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_critique_refinements_total",
			Help: "Number of critique-triggered second retrieval passes",
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cache_hits_total",
			Help: "Cache lookups by stage and hit/miss",
		},
		[]string{"stage", "result"},
	)
)
