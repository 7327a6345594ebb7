package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_frames_total",
		Help: "Audio frames delivered per destination",
	}, []string{"destination"})

	metricSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_send_errors_total",
		Help: "Failed or panicking sends per destination",
	}, []string{"destination"})

	metricNotReady = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_not_ready_skips_total",
		Help: "Frames skipped because the destination was not ready",
	}, []string{"destination"})
)
