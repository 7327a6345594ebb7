package decision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "decision_actions_total",
	Help: "Decisions taken by action",
}, []string{"action"})
