// Package metrics provides Prometheus metrics for the matching service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LinesProcessed counts terminal line outcomes by decision.
	LinesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "matching",
			Name:      "lines_total",
			Help:      "Total number of import lines processed by decision",
		},
		[]string{"decision", "method"},
	)

	LineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vine",
			Subsystem: "matching",
			Name:      "line_duration_seconds",
			Help:      "Duration of matching and persisting one line",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"decision"},
	)

	ConfidenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vine",
			Subsystem: "matching",
			Name:      "confidence_score",
			Help:      "Distribution of selected candidate scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 92, 95, 98, 100},
		},
	)

	GuardrailFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "matching",
			Name:      "guardrail_failures_total",
			Help:      "Guardrail failures on selected candidates by code",
		},
		[]string{"code"},
	)

	// RunsTotal counts RunMatching calls by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "processor",
			Name:      "runs_total",
			Help:      "Total number of matching runs by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vine",
			Subsystem: "processor",
			Name:      "run_duration_seconds",
			Help:      "Duration of matching runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	LinesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vine",
			Subsystem: "processor",
			Name:      "lines_in_flight",
			Help:      "Number of lines currently being matched",
		},
	)

	MappingWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "mappings",
			Name:      "writes_total",
			Help:      "Supplier product mapping writes by action",
		},
		[]string{"action"},
	)

	ReviewItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "review",
			Name:      "items_total",
			Help:      "Review queue items by kind and whether they were newly created",
		},
		[]string{"kind", "created"},
	)

	CatalogCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "catalog_cache",
			Name:      "requests_total",
			Help:      "Catalog cache lookups by result",
		},
		[]string{"result"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vine",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published by type and status",
		},
		[]string{"type", "status"},
	)
)
