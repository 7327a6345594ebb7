package voice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_connect_ms",
		Help:    "Time to connect and complete setup (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.8, 10),
	})

	metricReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_reconnects_total",
		Help: "Reconnect attempts to the voice service",
	})

	metricAudioSentBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_audio_sent_bytes_total",
		Help: "Caller audio bytes sent to the voice service",
	})

	metricAudioRecvBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_audio_recv_bytes_total",
		Help: "Model audio bytes received",
	})

	metricInstructions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_instructions_total",
		Help: "Control instructions sent by type",
	}, []string{"type"})

	metricInterrupts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_interrupts_total",
		Help: "Model turns interrupted locally",
	})

	metricSendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_send_errors_total",
		Help: "Failed writes to the voice socket",
	})

	metricServerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_server_errors_total",
		Help: "Error messages received from the voice service",
	})

	metricEventDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_event_drops_total",
		Help: "Events dropped due to slow consumer",
	})
)
