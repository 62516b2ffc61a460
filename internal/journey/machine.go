// Package journey owns the journey lifecycle: the Idle → Active → Ending
// state machine and the speed-based auto-detection loop that drives it.
package journey

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

// Event types emitted by the machine.
const (
	EventStateChanged = "journey.state"
	EventPosition     = "journey.position"
)

// Runner is a component that runs only while a journey is active.
type Runner interface {
	Start(ctx context.Context) error
	Stop()
}

// ArrivalNotifier sends the safe-arrival message when a journey ends.
type ArrivalNotifier interface {
	SafeArrival(ctx context.Context, journeyID string, pos *models.Position) (models.DispatchReport, error)
}

// Recorder persists journey history.
type Recorder interface {
	StartJourney(rec models.JourneyRecord) error
	FinishJourney(id string, endedAt time.Time, distance float64) error
}

// ContactSource exposes the current contact set.
type ContactSource interface {
	Current() models.ContactSet
}

// Config holds the machine timing knobs.
type Config struct {
	FreshFixTimeout   time.Duration
	SubscribeInterval time.Duration
}

// Deps are the collaborators of a Machine. Recorder and Events may be nil.
type Deps struct {
	Contacts  ContactSource
	Positions ports.PositionSource
	Arrival   ArrivalNotifier
	Recorder  Recorder
	Events    ports.EventSink
	Logger    *slog.Logger
}

// Machine is the single owner of the journey state. Start and Stop are
// serialized; a Start issued while a journey is ending waits for Idle.
type Machine struct {
	cfg       Config
	contacts  ContactSource
	positions ports.PositionSource
	arrival   ArrivalNotifier
	recorder  Recorder
	events    ports.EventSink
	logger    *slog.Logger

	transition  chan struct{}
	runners     []Runner
	unsubscribe func()

	mu    sync.Mutex
	state models.JourneyState
}

// NewMachine returns an Idle machine.
func NewMachine(cfg Config, deps Deps) *Machine {
	if cfg.SubscribeInterval <= 0 {
		cfg.SubscribeInterval = 10 * time.Second
	}
	if cfg.FreshFixTimeout <= 0 {
		cfg.FreshFixTimeout = 15 * time.Second
	}
	if deps.Events == nil {
		deps.Events = ports.NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Machine{
		cfg:        cfg,
		contacts:   deps.Contacts,
		positions:  deps.Positions,
		arrival:    deps.Arrival,
		recorder:   deps.Recorder,
		events:     deps.Events,
		logger:     deps.Logger,
		transition: make(chan struct{}, 1),
		state:      models.JourneyState{Phase: models.PhaseIdle},
	}
}

// Attach registers runners started on Active and stopped on Ending, in
// reverse order. It must be called before the first Start.
func (m *Machine) Attach(runners ...Runner) {
	m.runners = append(m.runners, runners...)
}

func (m *Machine) acquire(ctx context.Context) error {
	select {
	case m.transition <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) release() { <-m.transition }

// Start moves Idle → Active. It fails with apperr.ErrConflict when a journey
// is already active, apperr.ErrNoContactsSelected when nobody would be
// alerted and apperr.ErrPositionUnavailable when location is disabled.
func (m *Machine) Start(ctx context.Context, trigger models.JourneyTrigger) (models.JourneyState, error) {
	if err := m.acquire(ctx); err != nil {
		return m.Snapshot(), err
	}
	defer m.release()

	if m.Phase() == models.PhaseActive {
		return m.Snapshot(), fmt.Errorf("journey: start: already active: %w", apperr.ErrConflict)
	}
	if m.contacts.Current().IsEmpty() {
		return m.Snapshot(), fmt.Errorf("journey: start: %w", apperr.ErrNoContactsSelected)
	}
	if !m.positions.IsEnabled() {
		return m.Snapshot(), fmt.Errorf("journey: start: location disabled: %w", apperr.ErrPositionUnavailable)
	}

	now := time.Now()
	st := models.JourneyState{
		Phase:     models.PhaseActive,
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: &now,
	}
	if p, ok := m.positions.LastKnown(); ok {
		st.LastKnownPosition = &p
	}
	m.setState(st)

	if m.recorder != nil {
		if err := m.recorder.StartJourney(models.JourneyRecord{ID: st.ID, Trigger: trigger, StartedAt: now}); err != nil {
			m.logger.Warn("journey: record start failed", slog.String("journey_id", st.ID), slog.String("error", err.Error()))
		}
	}

	m.unsubscribe = m.positions.Subscribe(m.cfg.SubscribeInterval, m.UpdatePosition)

	// Runners outlive the request that started the journey.
	runCtx := context.WithoutCancel(ctx)
	for _, r := range m.runners {
		if err := r.Start(runCtx); err != nil {
			m.logger.Warn("journey: runner start failed", slog.String("journey_id", st.ID), slog.String("error", err.Error()))
		}
	}

	transitionsTotal.WithLabelValues(string(models.PhaseActive), string(trigger)).Inc()
	m.logger.Info("journey: started", slog.String("journey_id", st.ID), slog.String("trigger", string(trigger)))
	return m.Snapshot(), nil
}

// Stop moves Active → Ending → Idle: it stops the runners, sends the
// safe-arrival message and closes the journey record. It returns the final
// state of the ended journey.
func (m *Machine) Stop(ctx context.Context) (models.JourneyState, error) {
	if err := m.acquire(ctx); err != nil {
		return m.Snapshot(), err
	}
	defer m.release()

	if m.Phase() != models.PhaseActive {
		return m.Snapshot(), fmt.Errorf("journey: stop: %w", apperr.ErrNotActive)
	}

	m.mu.Lock()
	m.state.Phase = models.PhaseEnding
	m.mu.Unlock()
	m.emitState()

	m.teardown()

	ctx = context.WithoutCancel(ctx)
	ended := m.Snapshot()
	pos := m.arrivalPosition(ctx, ended.LastKnownPosition)
	if m.arrival != nil {
		if _, err := m.arrival.SafeArrival(ctx, ended.ID, pos); err != nil {
			m.logger.Warn("journey: safe arrival dispatch failed", slog.String("journey_id", ended.ID), slog.String("error", err.Error()))
		}
	}

	if m.recorder != nil {
		if err := m.recorder.FinishJourney(ended.ID, time.Now(), ended.DistanceMeters); err != nil {
			m.logger.Warn("journey: record finish failed", slog.String("journey_id", ended.ID), slog.String("error", err.Error()))
		}
	}

	m.setState(models.JourneyState{Phase: models.PhaseIdle})
	transitionsTotal.WithLabelValues(string(models.PhaseIdle), string(ended.Trigger)).Inc()
	m.logger.Info("journey: stopped",
		slog.String("journey_id", ended.ID),
		slog.Float64("distance_m", ended.DistanceMeters))

	ended.Phase = models.PhaseIdle
	return ended, nil
}

// Close stops the runners of an active journey without ending it. Used on
// process shutdown.
func (m *Machine) Close(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	if m.Phase() == models.PhaseActive {
		m.teardown()
	}
	return nil
}

func (m *Machine) teardown() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	for i := len(m.runners) - 1; i >= 0; i-- {
		m.runners[i].Stop()
	}
}

// arrivalPosition prefers a fresh fix, then the journey's last position,
// then whatever the source last saw.
func (m *Machine) arrivalPosition(ctx context.Context, last *models.Position) *models.Position {
	if p, ok := m.positions.RequestFresh(ctx, m.cfg.FreshFixTimeout); ok {
		return &p
	}
	if last != nil {
		return last
	}
	if p, ok := m.positions.LastKnown(); ok {
		return &p
	}
	return nil
}

// UpdatePosition folds a fix into the active journey. Fixes older than the
// last accepted one are ignored.
func (m *Machine) UpdatePosition(p models.Position) {
	m.mu.Lock()
	if m.state.Phase != models.PhaseActive {
		m.mu.Unlock()
		return
	}
	last := m.state.LastKnownPosition
	if last != nil && p.CapturedAt.Before(last.CapturedAt) {
		m.mu.Unlock()
		return
	}
	if last != nil {
		m.state.DistanceMeters += Distance(*last, p)
	}
	m.state.LastKnownPosition = &p
	id, distance := m.state.ID, m.state.DistanceMeters
	m.mu.Unlock()

	m.events.Emit(EventPosition, map[string]any{
		"journey_id":      id,
		"position":        p,
		"distance_meters": distance,
	})
}

// MarkAlertSent records the time of the last periodic alert.
func (m *Machine) MarkAlertSent(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == models.PhaseActive {
		m.state.LastAlertSentAt = &at
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() models.JourneyPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase
}

// JourneyID returns the id of the active or ending journey, or "".
func (m *Machine) JourneyID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ID
}

// LastKnownPosition returns the most recent fix folded into the journey.
func (m *Machine) LastKnownPosition() (models.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.LastKnownPosition == nil {
		return models.Position{}, false
	}
	return *m.state.LastKnownPosition, true
}

// Snapshot returns a copy of the state.
func (m *Machine) Snapshot() models.JourneyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	if st.LastKnownPosition != nil {
		p := *st.LastKnownPosition
		st.LastKnownPosition = &p
	}
	if st.StartedAt != nil {
		t := *st.StartedAt
		st.StartedAt = &t
	}
	if st.LastAlertSentAt != nil {
		t := *st.LastAlertSentAt
		st.LastAlertSentAt = &t
	}
	return st
}

func (m *Machine) setState(st models.JourneyState) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
	m.emitState()
}

func (m *Machine) emitState() {
	m.events.Emit(EventStateChanged, m.Snapshot())
}
