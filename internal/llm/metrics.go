package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var validatorCalls = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "seisan_validator_calls_total",
		Help: "Total number of LLM validator calls",
	},
	[]string{"op", "status"}, // op: validate, reconcile
)
