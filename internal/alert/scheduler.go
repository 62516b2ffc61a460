package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

// JourneyView is the read side of the journey state plus the one mutation
// the scheduler reports back.
type JourneyView interface {
	JourneyID() string
	LastKnownPosition() (models.Position, bool)
	MarkAlertSent(at time.Time)
}

// SchedulerConfig holds the periodic alert knobs.
type SchedulerConfig struct {
	Interval          time.Duration
	FreshFixTimeout   time.Duration
	LowBatteryPercent int
	LowBatteryEvery   time.Duration
}

// Scheduler fires a journey update immediately on Start and then Interval
// after each previous cycle finished, so cycles never overlap.
type Scheduler struct {
	cfg        SchedulerConfig
	dispatcher *Dispatcher
	journey    JourneyView
	contacts   ContactSource
	positions  ports.PositionSource
	battery    ports.BatteryGauge
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	limiter *rate.Limiter
}

// NewScheduler creates a stopped Scheduler. battery may be nil.
func NewScheduler(cfg SchedulerConfig, d *Dispatcher, journey JourneyView, positions ports.PositionSource, battery ports.BatteryGauge, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.FreshFixTimeout <= 0 {
		cfg.FreshFixTimeout = 15 * time.Second
	}
	if cfg.LowBatteryEvery <= 0 {
		cfg.LowBatteryEvery = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		dispatcher: d,
		journey:    journey,
		contacts:   d.contacts,
		positions:  positions,
		battery:    battery,
		logger:     logger,
	}
}

// Start launches the loop. It fails with apperr.ErrConflict if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("alert: scheduler already running: %w", apperr.ErrConflict)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.limiter = rate.NewLimiter(rate.Every(s.cfg.LowBatteryEvery), 1)
	go s.loop(loopCtx, s.done, s.limiter)
	s.logger.Info("scheduler: started", slog.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop cancels the pending tick and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler: stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}, limiter *rate.Limiter) {
	defer close(done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.cycle(ctx, limiter)
			if ctx.Err() != nil {
				return
			}
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context, limiter *rate.Limiter) {
	if s.contacts.Current().IsEmpty() {
		cyclesTotal.WithLabelValues("no_contacts").Inc()
		s.logger.Warn("scheduler: no contacts selected, skipping cycle")
		return
	}
	pos, ok := s.position(ctx)
	if !ok {
		cyclesTotal.WithLabelValues("no_position").Inc()
		s.logger.Warn("scheduler: no position available, skipping cycle")
		return
	}

	journeyID := s.journey.JourneyID()
	_, err := s.dispatcher.JourneyUpdate(ctx, journeyID, pos)
	switch {
	case errors.Is(err, apperr.ErrNoContactsSelected):
		cyclesTotal.WithLabelValues("no_contacts").Inc()
		return
	case err != nil:
		cyclesTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("scheduler: journey update failed", slog.String("error", err.Error()))
	default:
		cyclesTotal.WithLabelValues("sent").Inc()
		s.journey.MarkAlertSent(time.Now())
	}

	s.checkBattery(ctx, journeyID, pos, limiter)
}

// position prefers a cached fix and only then waits for a fresh one.
func (s *Scheduler) position(ctx context.Context) (models.Position, bool) {
	if p, ok := s.positions.LastKnown(); ok {
		return p, true
	}
	if p, ok := s.journey.LastKnownPosition(); ok {
		return p, true
	}
	return s.positions.RequestFresh(ctx, s.cfg.FreshFixTimeout)
}

func (s *Scheduler) checkBattery(ctx context.Context, journeyID string, pos models.Position, limiter *rate.Limiter) {
	if s.battery == nil || s.cfg.LowBatteryPercent <= 0 {
		return
	}
	level, ok := s.battery.BatteryLevel()
	if !ok || level >= s.cfg.LowBatteryPercent {
		return
	}
	if !limiter.Allow() {
		return
	}
	if _, err := s.dispatcher.LowBattery(ctx, journeyID, &pos); err != nil {
		s.logger.Warn("scheduler: low battery alert failed", slog.Int("battery", level), slog.String("error", err.Error()))
	}
}
