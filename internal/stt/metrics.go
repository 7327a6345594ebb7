package stt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All series carry the provider name so a second transcriber can share them.
var (
	metricAudioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_audio_bytes_total",
		Help: "Caller audio bytes queued for the transcriber",
	}, []string{"provider"})

	// outcome: queued, dropped
	metricFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_frames_total",
		Help: "Caller audio frames offered to the transcriber",
	}, []string{"provider", "outcome"})

	metricReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_reconnects_total",
		Help: "Reconnect attempts after a lost transcription stream",
	}, []string{"provider"})

	metricConnectMS = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stt_connect_ms",
		Help:    "Time to open a transcription stream (ms)",
		Buckets: prometheus.ExponentialBuckets(25, 1.8, 10),
	}, []string{"provider"})

	gaugeStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stt_streams_active",
		Help: "Open transcription streams, one per live interview",
	}, []string{"provider"})

	gaugeQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stt_send_queue_depth",
		Help: "Send queue depth at the last enqueue or flush",
	}, []string{"provider"})

	// kind: final, interim_fallback, empty_skipped
	metricTranscripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_transcripts_total",
		Help: "Transcript results handled, by kind",
	}, []string{"provider", "kind"})

	// type: speech_started, utterance_end, event_dropped
	metricStreamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_stream_events_total",
		Help: "Non-transcript stream events",
	}, []string{"provider", "type"})
)
