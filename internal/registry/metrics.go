package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registry_sessions",
		Help: "Sessions currently registered",
	})
	metricRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_rejections_total",
		Help: "CreateSession rejections by reason",
	}, []string{"reason"})
	metricCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_stale_cleaned_total",
		Help: "Sessions removed by stale cleanup",
	})
)
