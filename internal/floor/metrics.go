package floor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAITurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floor_ai_turns_total",
		Help: "AI speaking turns started",
	})

	metricAITurnMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "floor_ai_turn_ms",
		Help:    "Duration of AI speaking turns (ms)",
		Buckets: prometheus.ExponentialBuckets(250, 1.8, 10),
	})

	metricBargeIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floor_barge_in_total",
		Help: "Interrupts requested because the user spoke over the AI",
	})

	metricGuardBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "floor_barge_in_guard_blocks_total",
		Help: "Frames above threshold blocked by guard window",
	})

	metricBargeInLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "floor_barge_in_latency_ms",
		Help:    "Latency from guard end to detected speech start",
		Buckets: prometheus.ExponentialBuckets(10, 1.6, 10),
	})
)
