package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	extractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvest",
		Name:      "extractions_total",
		Help:      "Extractions by outcome (success or error kind).",
	}, []string{"outcome"})

	extractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "harvest",
		Name:      "extraction_duration_seconds",
		Help:      "Wall time of extraction requests.",
		Buckets:   prometheus.DefBuckets,
	})

	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harvest",
		Name:      "uploads_total",
		Help:      "Accepted CSV payload uploads.",
	})
)
