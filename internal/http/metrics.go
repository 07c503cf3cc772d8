package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "schoolledger_mutations_total",
	Help: "Successful state-changing operations by action name.",
}, []string{"action"})
