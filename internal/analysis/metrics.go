package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverscan_analyses_total",
		Help: "Completed analyses by risk tier and primary pattern.",
	}, []string{"risk", "primary"})

	analysisErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "liverscan_analysis_errors_total",
		Help: "Rejected or failed analyses by error kind.",
	}, []string{"kind"})

	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "liverscan_inference_duration_seconds",
		Help:    "Wall time of the model predict call.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)
