package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_live",
		Help: "Sessions that have not torn down",
	})
	metricEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_ended_total",
		Help: "Sessions ended by terminal phase",
	}, []string{"phase"})
	metricConnectMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_connect_ms",
		Help:    "Time to connect voice and transcription",
		Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000},
	})
	metricTranscripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_transcripts_total",
		Help: "Transcript spans appended to answers by source",
	}, []string{"source"})
	metricInstructions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_instructions_total",
		Help: "Control instructions sent to the voice model",
	}, []string{"type"})
	metricBargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_barge_in_total",
		Help: "AI turns interrupted by the caller",
	})
	metricSilenceIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_silence_ignored_total",
		Help: "Silence events ignored while the AI held the floor",
	})
	metricStaleAnalyses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_stale_analyses_total",
		Help: "Analysis results discarded because the question moved on",
	})
)
