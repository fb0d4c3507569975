package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	AdmissionDecisionsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustshield_admission_decisions_total",
			Help: "Admission verdicts by check type and reason",
		},
		[]string{"check", "verdict", "reason"},
	)

	StoreFailuresTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "trustshield_store_failures_total",
			Help: "Counter store calls that failed or timed out",
		},
	)

	RuleActionsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustshield_rule_actions_total",
			Help: "Rule actions returned by evaluation",
		},
		[]string{"action"},
	)

	DetectionSignalsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "trustshield_detection_signals_total",
			Help: "Positive attack detections by signal",
		},
		[]string{"signal"},
	)
)

func Registry() *prometheus.Registry {
	return registry
}
