package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "audio_ws_connections",
		Help: "Open audio websocket connections",
	})
	metricRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_ws_rejected_total",
		Help: "Audio websocket upgrades refused",
	}, []string{"reason"})
	metricFramesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_ws_frames_in_total",
		Help: "Caller audio frames received",
	})
	metricFramesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_ws_frames_out_total",
		Help: "AI audio frames written",
	})
	metricFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_ws_frames_dropped_total",
		Help: "AI audio frames dropped because the socket fell behind",
	})
)
