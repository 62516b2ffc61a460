package journey

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

// DetectorConfig holds the auto-detection thresholds.
type DetectorConfig struct {
	PollInterval      time.Duration
	SpeedThresholdKph float64
	StopCooldown      time.Duration
}

// Detector polls the position source and starts or stops journeys based on
// speed. Starting needs one reading above the threshold; stopping needs the
// readings to stay below it for the whole cool-down window.
type Detector struct {
	machine      *Machine
	positions    ports.PositionSource
	poll         time.Duration
	threshold    float64
	confirmTicks int
	logger       *slog.Logger

	below   int       // consecutive sub-threshold readings; touched only by Tick
	lastFix time.Time // capture time of the last fix Tick consumed
}

// NewDetector creates a Detector driving m.
func NewDetector(m *Machine, positions ports.PositionSource, cfg DetectorConfig, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	ticks := int(math.Ceil(float64(cfg.StopCooldown) / float64(cfg.PollInterval)))
	if ticks < 1 {
		ticks = 1
	}
	return &Detector{
		machine:      m,
		positions:    positions,
		poll:         cfg.PollInterval,
		threshold:    cfg.SpeedThresholdKph,
		confirmTicks: ticks,
		logger:       logger,
	}
}

// ConfirmTicks is the number of consecutive sub-threshold readings that end
// an auto-started journey.
func (d *Detector) ConfirmTicks() int { return d.confirmTicks }

// Run ticks every poll interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("detector: started",
		slog.Duration("poll", d.poll),
		slog.Float64("threshold_kph", d.threshold),
		slog.Int("confirm_ticks", d.confirmTicks))

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("detector: stopped")
			return nil
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick processes one reading. A fix already seen by an earlier tick counts
// as a missing reading. It is not safe for concurrent use.
func (d *Detector) Tick(ctx context.Context) {
	if !d.positions.IsEnabled() {
		detectorReadings.WithLabelValues("disabled").Inc()
		d.logger.Debug("detector: location disabled, skipping")
		return
	}
	p, ok := d.positions.LastKnown()
	if !ok {
		detectorReadings.WithLabelValues("missing").Inc()
		d.logger.Debug("detector: no fix yet, skipping")
		return
	}
	if !p.CapturedAt.After(d.lastFix) {
		detectorReadings.WithLabelValues("stale").Inc()
		d.logger.Debug("detector: no new fix since last tick, skipping")
		return
	}
	d.lastFix = p.CapturedAt
	kph, ok := p.SpeedKph()
	if !ok {
		detectorReadings.WithLabelValues("missing").Inc()
		d.logger.Debug("detector: fix has no speed, skipping")
		return
	}

	st := d.machine.Snapshot()
	switch st.Phase {
	case models.PhaseIdle:
		d.below = 0
		if kph <= d.threshold {
			detectorReadings.WithLabelValues("idle").Inc()
			return
		}
		detectorReadings.WithLabelValues("moving").Inc()
		if _, err := d.machine.Start(ctx, models.TriggerAuto); err != nil {
			d.logger.Warn("detector: auto start failed", slog.Float64("speed_kph", kph), slog.String("error", err.Error()))
			return
		}
		d.logger.Info("detector: journey detected", slog.Float64("speed_kph", kph))

	case models.PhaseActive:
		if st.Trigger != models.TriggerAuto {
			d.below = 0
			return
		}
		if kph >= d.threshold {
			detectorReadings.WithLabelValues("moving").Inc()
			d.below = 0
			return
		}
		detectorReadings.WithLabelValues("slow").Inc()
		d.below++
		if d.below < d.confirmTicks {
			return
		}
		d.below = 0
		if _, err := d.machine.Stop(ctx); err != nil {
			d.logger.Warn("detector: auto stop failed", slog.String("error", err.Error()))
			return
		}
		d.logger.Info("detector: journey ended", slog.Float64("speed_kph", kph))
	}
}
