package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dispatchTotal counts fan-outs by alert kind and result.
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailguard_alert_dispatch_total",
		Help: "Alert fan-outs by alert kind and result",
	}, []string{"alert", "result"})

	// outcomesTotal counts per-destination outcomes.
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailguard_alert_outcomes_total",
		Help: "Per-destination delivery outcomes by alert kind, channel and outcome",
	}, []string{"alert", "channel", "outcome"})

	// cyclesTotal counts periodic scheduler firings.
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailguard_scheduler_cycles_total",
		Help: "Periodic alert cycles by result",
	}, []string{"result"})
)
