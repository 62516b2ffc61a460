package voice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// promptsTotal counts keyword matches by how they were resolved.
	promptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailguard_voice_prompts_total",
		Help: "Voice keyword prompts by result",
	}, []string{"result"})

	// restartsTotal counts listen session restarts.
	restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailguard_voice_restarts_total",
		Help: "Listen session restarts by reason",
	}, []string{"reason"})
)
