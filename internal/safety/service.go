// Package safety owns the user's session and wires the contact engine,
// journey machine, alert dispatch and voice trigger into one service used
// by the HTTP API and the MCP tools.
package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/trailguard/internal/alert"
	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/channel"
	"github.com/starford/trailguard/internal/contacts"
	"github.com/starford/trailguard/internal/journey"
	"github.com/starford/trailguard/internal/message"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/phone"
	"github.com/starford/trailguard/internal/ports"
	"github.com/starford/trailguard/internal/position"
	"github.com/starford/trailguard/internal/speech"
	"github.com/starford/trailguard/internal/storage"
	"github.com/starford/trailguard/internal/store"
	"github.com/starford/trailguard/internal/voice"
)

// Session identifies the user whose journeys are monitored.
type Session struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Config gathers the knobs of every component the service builds.
type Config struct {
	Session     Session
	CountryCode string
	LocalLength int
	Location    *time.Location
	SyncTimeout time.Duration

	Journey   journey.Config
	Detector  journey.DetectorConfig
	Scheduler alert.SchedulerConfig
	Alert     alert.Config
	Voice     voice.Config

	// AutoDetect runs the speed-based detector alongside the service.
	AutoDetect bool
}

// Deps are the infrastructure adapters. Remote, LocationLog, Imports,
// Speech and Events may be nil.
type Deps struct {
	Store       *store.DB
	Remote      ports.ContactStore
	LocationLog ports.LocationLogStore
	Imports     storage.Provider
	Channels    []ports.AlertChannel
	Speech      ports.SpeechService
	Events      ports.EventSink
	Logger      *slog.Logger
}

// Service is the single entry point for safety operations.
type Service struct {
	session    Session
	db         *store.DB
	imports    storage.Provider
	tracker    *position.Tracker
	engine     *contacts.Engine
	machine    *journey.Machine
	dispatcher *alert.Dispatcher
	scheduler  *alert.Scheduler
	detector   *journey.Detector
	voice      *voice.Loop
	prompts    *voice.PromptQueue
	relay      *speech.Relay
	channels   map[string]ports.AlertChannel
	logger     *slog.Logger
}

// New builds every component and wires them together. Nothing runs until
// Start.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("safety: store is required")
	}
	if cfg.Session.UserID == "" {
		return nil, errors.New("safety: session user id is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = ports.NopSink{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	composer, err := message.NewComposer(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("safety: %w", err)
	}

	s := &Service{
		session:  cfg.Session,
		db:       deps.Store,
		imports:  deps.Imports,
		tracker:  position.NewTracker(),
		channels: make(map[string]ports.AlertChannel, len(deps.Channels)),
		logger:   deps.Logger,
	}
	for _, ch := range deps.Channels {
		s.channels[ch.Name()] = ch
	}

	opts := contacts.Options{
		UserID:      cfg.Session.UserID,
		Normalizer:  phone.New(cfg.CountryCode, cfg.LocalLength),
		Remote:      deps.Remote,
		Cache:       deps.Store,
		SyncTimeout: cfg.SyncTimeout,
		Events:      deps.Events,
		Logger:      deps.Logger.With(slog.String("component", "contacts")),
	}
	if deps.Imports != nil {
		opts.Device = deps.Imports
	}
	s.engine = contacts.New(opts)

	cfg.Alert.UserID = cfg.Session.UserID
	cfg.Alert.DisplayName = cfg.Session.DisplayName
	s.dispatcher, err = alert.NewDispatcher(cfg.Alert, alert.Deps{
		Contacts:    s.engine,
		Positions:   s.tracker,
		Battery:     s.tracker,
		Composer:    composer,
		Channels:    deps.Channels,
		LocationLog: deps.LocationLog,
		Journal:     deps.Store,
		Events:      deps.Events,
		Logger:      deps.Logger.With(slog.String("component", "alert")),
	})
	if err != nil {
		return nil, fmt.Errorf("safety: %w", err)
	}

	s.machine = journey.NewMachine(cfg.Journey, journey.Deps{
		Contacts:  s.engine,
		Positions: s.tracker,
		Arrival:   s.dispatcher,
		Recorder:  deps.Store,
		Events:    deps.Events,
		Logger:    deps.Logger.With(slog.String("component", "journey")),
	})
	s.dispatcher.SetJourney(s.machine)

	s.scheduler = alert.NewScheduler(cfg.Scheduler, s.dispatcher, s.machine, s.tracker, s.tracker,
		deps.Logger.With(slog.String("component", "scheduler")))
	runners := []journey.Runner{s.scheduler}

	if deps.Speech != nil {
		s.prompts = voice.NewPromptQueue(deps.Events)
		s.voice = voice.NewLoop(cfg.Voice, deps.Speech, s.prompts, s.dispatcher,
			deps.Logger.With(slog.String("component", "voice")))
		runners = append(runners, s.voice)
		if r, ok := deps.Speech.(*speech.Relay); ok {
			s.relay = r
		}
	}
	s.machine.Attach(runners...)

	if cfg.AutoDetect {
		s.detector = journey.NewDetector(s.machine, s.tracker, cfg.Detector,
			deps.Logger.With(slog.String("component", "detector")))
	}
	return s, nil
}

// Start restores the cached contacts and runs a first sync. A failed sync
// is logged, not returned: alerts can still use the restored set.
func (s *Service) Start(ctx context.Context) error {
	if err := s.engine.Restore(); err != nil {
		return err
	}
	if _, err := s.engine.Sync(ctx); err != nil {
		s.logger.Warn("initial contact sync degraded", slog.String("error", err.Error()))
	}
	return nil
}

// Run drives the background loops (detector, import watcher) until ctx is
// cancelled. A watcher failure is logged and does not stop the service.
func (s *Service) Run(ctx context.Context) error {
	var g errgroup.Group
	if s.detector != nil {
		g.Go(func() error { return s.detector.Run(ctx) })
	}
	if s.imports != nil {
		g.Go(func() error {
			err := storage.Watch(ctx, s.imports.Root(), s.logger, func(ctx context.Context) {
				if _, err := s.engine.Sync(ctx); err != nil {
					s.logger.Warn("contact sync after import failed", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				s.logger.Error("contact import watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}
	err := g.Wait()
	<-ctx.Done()
	return err
}

// Close stops the loops of an active journey and waits for outstanding
// delivery reports.
func (s *Service) Close(ctx context.Context) error {
	err := s.machine.Close(ctx)
	done := make(chan struct{})
	go func() {
		s.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("delivery reports still pending at shutdown")
	}
	return err
}

// Session returns the monitored user.
func (s *Service) Session() Session { return s.session }

// Journey returns the current journey state.
func (s *Service) Journey() models.JourneyState { return s.machine.Snapshot() }

// StartJourney starts a manual journey.
func (s *Service) StartJourney(ctx context.Context) (models.JourneyState, error) {
	return s.machine.Start(ctx, models.TriggerManual)
}

// StopJourney ends the active journey and sends the safe-arrival message.
func (s *Service) StopJourney(ctx context.Context) (models.JourneyState, error) {
	return s.machine.Stop(ctx)
}

// TriggerSOS sends the emergency message on every channel.
func (s *Service) TriggerSOS(ctx context.Context) (models.DispatchReport, error) {
	return s.dispatcher.Trigger(ctx, models.SOSManual)
}

// ContactsView is the selected set plus every known contact.
type ContactsView struct {
	Selected models.ContactSetView `json:"selected"`
	Roster   []models.Contact      `json:"roster"`
}

// Contacts returns the current contact state.
func (s *Service) Contacts() ContactsView {
	return ContactsView{Selected: s.engine.Current().View(), Roster: s.engine.Roster()}
}

// SyncContacts re-merges every source. A degraded sync returns the fallback
// set together with an error wrapping apperr.ErrStoreUnavailable.
func (s *Service) SyncContacts(ctx context.Context) (models.ContactSet, error) {
	return s.engine.Sync(ctx)
}

// SelectContacts replaces the selection with numbers.
func (s *Service) SelectContacts(ctx context.Context, numbers []string) (models.ContactSet, error) {
	return s.engine.Select(ctx, numbers)
}

// ImportContacts stores a device contact export and re-syncs.
func (s *Service) ImportContacts(ctx context.Context, name string, data []byte) (models.ContactSet, error) {
	if s.imports == nil {
		return models.ContactSet{}, fmt.Errorf("safety: contact import not configured: %w", apperr.ErrNotFound)
	}
	if err := s.imports.Write(name, data); err != nil {
		return models.ContactSet{}, err
	}
	return s.engine.Sync(ctx)
}

// ReportPosition records a device fix and, when given, the battery level.
// It reports whether the fix was newer than the last one.
func (s *Service) ReportPosition(p models.Position, battery *int) (bool, error) {
	if battery != nil {
		if err := s.tracker.SetBattery(*battery); err != nil {
			return false, err
		}
	}
	return s.tracker.Report(p)
}

// SetLocationEnabled toggles the device location capability.
func (s *Service) SetLocationEnabled(enabled bool) { s.tracker.SetEnabled(enabled) }

// LocationEnabled reports the device location capability.
func (s *Service) LocationEnabled() bool { return s.tracker.IsEnabled() }

// PushTranscript feeds a relayed recognizer transcript to the voice loop.
func (s *Service) PushTranscript(t models.Transcript) error {
	if s.relay == nil {
		return fmt.Errorf("safety: transcript relay not configured: %w", apperr.ErrNotFound)
	}
	return s.relay.Push(t)
}

// PendingPrompts lists unresolved voice prompts.
func (s *Service) PendingPrompts() []models.VoicePrompt {
	if s.prompts == nil {
		return nil
	}
	return s.prompts.Pending()
}

// ResolvePrompt confirms or cancels a voice prompt.
func (s *Service) ResolvePrompt(id string, confirmed bool) error {
	if s.prompts == nil {
		return fmt.Errorf("safety: voice prompt %s: %w", id, apperr.ErrNotFound)
	}
	return s.prompts.Resolve(id, confirmed)
}

// HandleChannelStatus forwards a delivery status callback to the named
// channel.
func (s *Service) HandleChannelStatus(name, messageID, status, detail string) error {
	ch, ok := s.channels[name]
	if !ok {
		return fmt.Errorf("safety: channel %q: %w", name, apperr.ErrNotFound)
	}
	rcv, ok := ch.(channel.StatusReceiver)
	if !ok {
		return fmt.Errorf("safety: channel %q takes no status callbacks: %w", name, apperr.ErrNotFound)
	}
	return rcv.HandleStatus(messageID, status, detail)
}

// RecentDeliveries returns the newest delivery outcomes.
func (s *Service) RecentDeliveries(limit int) ([]models.DeliveryOutcome, error) {
	return s.db.RecentOutcomes(limit)
}

// RecentJourneys returns the newest journey records.
func (s *Service) RecentJourneys(limit int) ([]models.JourneyRecord, error) {
	return s.db.RecentJourneys(limit)
}

// RecentLocations returns the newest location log entries.
func (s *Service) RecentLocations(limit int) ([]models.LocationRecord, error) {
	return s.db.RecentLocations(limit)
}
