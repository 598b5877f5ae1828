package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "registrations_total",
		Help:      "Registration attempts by outcome (ok or the blocking error kind)",
	}, []string{"outcome"})

	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "recognitions_total",
		Help:      "Recognition requests by outcome",
	}, []string{"outcome"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"operation"})

	FacesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "faces_matched_total",
		Help:      "Total number of faces matched to a stored identity",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "stage_duration_seconds",
		Help:      "Duration of registration and recognition stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference calls",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"model"})

	Identities = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "identities",
		Help:      "Number of registered identities seen by the last count",
	})

	IntegrityIssues = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "integrity_issues",
		Help:      "Number of issues found by the last integrity check",
	})

	OrphanedAssets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "orphaned_assets_total",
		Help:      "Asset objects left behind by failed rollbacks or deletions, by resolution",
	}, []string{"result"})

	OrphanBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "orphan_backlog",
		Help:      "Orphaned asset reports waiting for the cleanup worker",
	})

	IDFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "faceid",
		Name:      "id_generator_fallbacks_total",
		Help:      "Identifiers generated from the clock because the store lookup failed",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "faceid",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "faceid",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
