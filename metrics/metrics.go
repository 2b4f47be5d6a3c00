package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_events_ingested_total",
			Help: "Total number of security events ingested",
		},
		[]string{"source"},
	)

	TelemetrySamples = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_telemetry_samples_total",
			Help: "Total number of telemetry samples analyzed",
		},
	)

	CorrelationsFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_correlations_found_total",
			Help: "Total number of correlated attack patterns detected",
		},
		[]string{"pattern"},
	)

	RiskScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_risk_score",
			Help:    "Distribution of computed risk scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_actions_executed_total",
			Help: "Total number of response actions executed",
		},
		[]string{"type", "status"},
	)

	IncidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_incidents_created_total",
			Help: "Total number of incidents created",
		},
		[]string{"severity"},
	)

	IncidentsEscalated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_incidents_escalated_total",
			Help: "Total number of incident escalations",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_notifications_sent_total",
			Help: "Total number of notifications dispatched per channel",
		},
		[]string{"channel", "status"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_pipeline_duration_seconds",
			Help:    "Time taken to process one submission end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"cache", "operation"},
	)

	AnomaliesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_anomalies_detected_total",
			Help: "Total number of telemetry samples flagged anomalous",
		},
	)
)
