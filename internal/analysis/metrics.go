package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_calls_total",
		Help: "Analysis calls by outcome (ok, timeout, cancelled, parse_error, error)",
	}, []string{"outcome"})

	metricLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_latency_ms",
		Help:    "Analysis call latency (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.7, 10),
	})

	gaugePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_pending",
		Help: "In-flight analysis calls",
	})
)
