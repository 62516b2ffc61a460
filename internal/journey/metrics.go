package journey

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// transitionsTotal counts completed state transitions.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailguard_journey_transitions_total",
		Help: "Journey state transitions by target phase and trigger",
	}, []string{"to", "trigger"})

	// detectorReadings counts detector ticks by what the reading showed.
	detectorReadings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailguard_detector_readings_total",
		Help: "Auto-detection readings by result",
	}, []string{"result"})
)
