package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "matches_total", Help: "Total committed carpool matches"})
	MatchConflicts   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "match_conflicts_total", Help: "Match commits lost to a concurrent writer"})
	PipelineLatency  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "carpool", Name: "pipeline_latency_seconds", Help: "End-to-end matching pipeline latency", Buckets: prometheus.ExponentialBuckets(0.05, 2, 10)})
	OpenReservations = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "carpool", Name: "open_reservations", Help: "Reservations currently in searching state"})

	EnrichmentDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "enrichment_drops_total", Help: "Candidate pairs dropped after routing provider failures"},
		[]string{"vendor"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "operations_total", Help: "Monitored operations by component and outcome"},
		[]string{"component", "operation", "status"},
	)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "carpool", Name: "operation_duration_seconds", Help: "Monitored operation latency distribution", Buckets: prometheus.DefBuckets},
		[]string{"component", "operation"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
