package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persist_writes_total",
		Help: "Successful store writes by kind",
	}, []string{"kind"})
	metricFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persist_failures_total",
		Help: "Failed store writes by kind",
	}, []string{"kind"})
	metricWriteMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "persist_record_write_ms",
		Help:    "Final record write latency in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})
)
