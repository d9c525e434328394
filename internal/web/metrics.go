package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "converter_conversions_total",
		Help: "Statement conversions by outcome.",
	}, []string{"outcome"})

	conversionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "converter_conversion_duration_seconds",
		Help:    "Wall time of one statement conversion.",
		Buckets: prometheus.DefBuckets,
	})

	uploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "converter_upload_bytes",
		Help:    "Size of uploaded statements.",
		Buckets: prometheus.ExponentialBuckets(64<<10, 4, 8),
	})
)
