package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gate_decisions_total",
	Help: "Requests seen by the auth gate, by route tier and action",
}, []string{"tier", "action"})
