// Package alert fans composed messages out to emergency contacts: the
// periodic journey scheduler, SOS dispatch, safe-arrival and low-battery
// notices all converge on Dispatcher.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/message"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

// Event types emitted by the dispatcher.
const (
	EventDispatched = "alert.dispatched"
	EventOutcome    = "delivery.outcome"
)

// ContactSource exposes the current contact set.
type ContactSource interface {
	Current() models.ContactSet
}

// Journal keeps local records of what was sent.
type Journal interface {
	AppendLocation(rec models.LocationRecord) error
	RecordOutcome(o models.DeliveryOutcome) error
}

// JourneyIDs reports the active journey, if any.
type JourneyIDs interface {
	JourneyID() string
}

// Config holds dispatcher timing knobs.
type Config struct {
	UserID            string
	DisplayName       string
	SendTimeout       time.Duration
	OutcomeTimeout    time.Duration
	FreshFixTimeout   time.Duration
	PositionFreshness time.Duration
}

// Deps are the collaborators of a Dispatcher. Channels must be non-empty;
// the first one is the primary channel used for routine alerts. Battery,
// LocationLog, Journal, Journey and Events may be nil.
type Deps struct {
	Contacts    ContactSource
	Positions   ports.PositionSource
	Battery     ports.BatteryGauge
	Composer    *message.Composer
	Channels    []ports.AlertChannel
	LocationLog ports.LocationLogStore
	Journal     Journal
	Journey     JourneyIDs
	Events      ports.EventSink
	Logger      *slog.Logger
}

// Dispatcher composes and sends alerts.
type Dispatcher struct {
	cfg         Config
	contacts    ContactSource
	positions   ports.PositionSource
	battery     ports.BatteryGauge
	composer    *message.Composer
	channels    []ports.AlertChannel
	locationLog ports.LocationLogStore
	journal     Journal
	journey     JourneyIDs
	events      ports.EventSink
	logger      *slog.Logger

	drains sync.WaitGroup
}

// NewDispatcher validates deps and returns a Dispatcher.
func NewDispatcher(cfg Config, deps Deps) (*Dispatcher, error) {
	if len(deps.Channels) == 0 {
		return nil, fmt.Errorf("alert: at least one channel is required")
	}
	if deps.Composer == nil {
		return nil, fmt.Errorf("alert: composer is required")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 20 * time.Second
	}
	if cfg.OutcomeTimeout <= 0 {
		cfg.OutcomeTimeout = 10 * time.Minute
	}
	if cfg.FreshFixTimeout <= 0 {
		cfg.FreshFixTimeout = 15 * time.Second
	}
	if cfg.PositionFreshness <= 0 {
		cfg.PositionFreshness = 2 * time.Minute
	}
	if deps.Events == nil {
		deps.Events = ports.NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Dispatcher{
		cfg:         cfg,
		contacts:    deps.Contacts,
		positions:   deps.Positions,
		battery:     deps.Battery,
		composer:    deps.Composer,
		channels:    deps.Channels,
		locationLog: deps.LocationLog,
		journal:     deps.Journal,
		journey:     deps.Journey,
		events:      deps.Events,
		logger:      deps.Logger,
	}, nil
}

// SetJourney wires the journey id source after construction.
func (d *Dispatcher) SetJourney(j JourneyIDs) { d.journey = j }

// Trigger sends an SOS through every configured channel. The position is
// the last known fix when it is fresh enough, otherwise one bounded fresh
// fix; without either the message states the position is unavailable.
// It fails with apperr.ErrNoContactsSelected when the set is empty and with
// apperr.ErrChannelSendFailed when no destination accepted the message.
// Cancelling ctx does not abort an SOS; every destination is attempted.
func (d *Dispatcher) Trigger(ctx context.Context, source models.SOSSource) (models.DispatchReport, error) {
	ctx = context.WithoutCancel(ctx)
	if d.contacts.Current().IsEmpty() {
		dispatchTotal.WithLabelValues(string(models.AlertSOS), "no_contacts").Inc()
		return models.DispatchReport{}, fmt.Errorf("alert: sos: %w", apperr.ErrNoContactsSelected)
	}
	pos := d.sosPosition(ctx)
	d.logger.Warn("alert: SOS triggered", slog.String("source", string(source)), slog.Bool("position_known", pos != nil))
	return d.dispatch(ctx, models.AlertSOS, d.currentJourney(), pos, d.channels)
}

// JourneyUpdate sends the periodic journey update through the primary channel.
func (d *Dispatcher) JourneyUpdate(ctx context.Context, journeyID string, pos models.Position) (models.DispatchReport, error) {
	return d.dispatch(ctx, models.AlertJourneyUpdate, journeyID, &pos, d.channels[:1])
}

// SafeArrival sends the end-of-journey notice through the primary channel.
func (d *Dispatcher) SafeArrival(ctx context.Context, journeyID string, pos *models.Position) (models.DispatchReport, error) {
	return d.dispatch(ctx, models.AlertSafeArrival, journeyID, pos, d.channels[:1])
}

// LowBattery warns contacts that the device may soon go dark.
func (d *Dispatcher) LowBattery(ctx context.Context, journeyID string, pos *models.Position) (models.DispatchReport, error) {
	return d.dispatch(ctx, models.AlertLowBattery, journeyID, pos, d.channels[:1])
}

// Wait blocks until every pending delivery outcome has been drained.
func (d *Dispatcher) Wait() { d.drains.Wait() }

func (d *Dispatcher) currentJourney() string {
	if d.journey == nil {
		return ""
	}
	return d.journey.JourneyID()
}

func (d *Dispatcher) sosPosition(ctx context.Context) *models.Position {
	if p, ok := d.positions.LastKnown(); ok && time.Since(p.CapturedAt) <= d.cfg.PositionFreshness {
		return &p
	}
	if p, ok := d.positions.RequestFresh(ctx, d.cfg.FreshFixTimeout); ok {
		return &p
	}
	return nil
}

func (d *Dispatcher) batteryLevel() *int {
	if d.battery == nil {
		return nil
	}
	if level, ok := d.battery.BatteryLevel(); ok {
		return &level
	}
	return nil
}

// dispatch snapshots the contact set once and fans the message out to every
// destination on each channel. Channels run concurrently and independently.
func (d *Dispatcher) dispatch(ctx context.Context, kind models.AlertKind, journeyID string, pos *models.Position, channels []ports.AlertChannel) (models.DispatchReport, error) {
	set := d.contacts.Current()
	if set.IsEmpty() {
		dispatchTotal.WithLabelValues(string(kind), "no_contacts").Inc()
		return models.DispatchReport{}, fmt.Errorf("alert: %s: %w", kind, apperr.ErrNoContactsSelected)
	}

	now := time.Now()
	battery := d.batteryLevel()
	text, err := d.composer.Compose(kind, message.Context{
		Name:     d.cfg.DisplayName,
		Position: pos,
		At:       now,
		Battery:  battery,
	})
	if err != nil {
		return models.DispatchReport{}, err
	}

	report := models.DispatchReport{
		ID:            uuid.NewString(),
		Alert:         kind,
		Text:          text,
		PositionKnown: pos != nil,
		Channels:      make([]models.ChannelResult, len(channels)),
		At:            now,
	}

	destinations := set.Destinations()
	outcomes := make([][]models.DeliveryOutcome, len(channels))
	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			report.Channels[i], outcomes[i] = d.fanOut(ctx, report.ID, kind, ch, destinations, text)
			return nil
		})
	}
	_ = g.Wait()
	for _, o := range outcomes {
		report.Outcomes = append(report.Outcomes, o...)
	}

	d.appendLocation(ctx, models.LocationRecord{
		JourneyID:    journeyID,
		UserID:       d.cfg.UserID,
		Alert:        kind,
		Position:     pos,
		BatteryLevel: battery,
		Message:      text,
		CreatedAt:    now,
	})
	d.events.Emit(EventDispatched, report)

	if !report.Succeeded() {
		dispatchTotal.WithLabelValues(string(kind), "failed").Inc()
		d.logger.Error("alert: no destination reached",
			slog.String("dispatch_id", report.ID),
			slog.String("alert", string(kind)),
			slog.Int("destinations", len(destinations)))
		return report, fmt.Errorf("alert: %s: %w", kind, apperr.ErrChannelSendFailed)
	}
	dispatchTotal.WithLabelValues(string(kind), "sent").Inc()
	d.logger.Info("alert: dispatched",
		slog.String("dispatch_id", report.ID),
		slog.String("alert", string(kind)),
		slog.Int("sent", report.SentCount()),
		slog.Bool("position_known", report.PositionKnown))
	return report, nil
}

// fanOut sends text to every destination on one channel. Once ctx is
// cancelled no further sends are issued; sends already issued run to
// completion under their own timeout.
func (d *Dispatcher) fanOut(ctx context.Context, dispatchID string, kind models.AlertKind, ch ports.AlertChannel, destinations []string, text string) (models.ChannelResult, []models.DeliveryOutcome) {
	res := models.ChannelResult{Channel: ch.Name()}
	out := make([]models.DeliveryOutcome, 0, len(destinations))
	for _, dest := range destinations {
		o := models.DeliveryOutcome{
			DispatchID:  dispatchID,
			Channel:     ch.Name(),
			Destination: dest,
			Alert:       kind,
		}
		if ctx.Err() != nil {
			o.Outcome, o.Reason, o.At = models.OutcomeFailed, "cancelled", time.Now()
			res.Failed++
			out = append(out, o)
			d.record(o)
			continue
		}

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SendTimeout)
		receipt, err := ch.Send(sendCtx, dest, text)
		cancel()
		o.At = time.Now()
		if err != nil {
			o.Outcome, o.Reason = models.OutcomeFailed, err.Error()
			res.Failed++
			d.logger.Warn("alert: send failed",
				slog.String("channel", ch.Name()),
				slog.String("destination", dest),
				slog.String("error", err.Error()))
		} else {
			o.Outcome = models.OutcomeSent
			o.MessageID = receipt.MessageID
			res.Sent++
			if receipt.Outcomes != nil {
				d.drain(o, receipt.Outcomes)
			}
		}
		out = append(out, o)
		d.record(o)
	}
	return res, out
}

// drain records asynchronous delivery reports for one message until the
// channel closes or the outcome timeout passes.
func (d *Dispatcher) drain(sent models.DeliveryOutcome, outcomes <-chan models.DeliveryOutcome) {
	d.drains.Add(1)
	go func() {
		defer d.drains.Done()
		timer := time.NewTimer(d.cfg.OutcomeTimeout)
		defer timer.Stop()
		for {
			select {
			case o, ok := <-outcomes:
				if !ok {
					return
				}
				o.DispatchID, o.MessageID, o.Alert = sent.DispatchID, sent.MessageID, sent.Alert
				if o.Channel == "" {
					o.Channel = sent.Channel
				}
				if o.Destination == "" {
					o.Destination = sent.Destination
				}
				if o.At.IsZero() {
					o.At = time.Now()
				}
				d.record(o)
			case <-timer.C:
				d.logger.Debug("alert: outcome wait expired",
					slog.String("message_id", sent.MessageID),
					slog.String("channel", sent.Channel))
				return
			}
		}
	}()
}

func (d *Dispatcher) record(o models.DeliveryOutcome) {
	outcomesTotal.WithLabelValues(string(o.Alert), o.Channel, string(o.Outcome)).Inc()
	if d.journal != nil {
		if err := d.journal.RecordOutcome(o); err != nil {
			d.logger.Warn("alert: record outcome failed", slog.String("error", err.Error()))
		}
	}
	d.events.Emit(EventOutcome, o)
}

func (d *Dispatcher) appendLocation(ctx context.Context, rec models.LocationRecord) {
	if d.journal != nil {
		if err := d.journal.AppendLocation(rec); err != nil {
			d.logger.Warn("alert: local location log failed", slog.String("error", err.Error()))
		}
	}
	if d.locationLog == nil {
		return
	}
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SendTimeout)
	defer cancel()
	if err := d.locationLog.Append(logCtx, rec); err != nil {
		d.logger.Warn("alert: remote location log failed", slog.String("error", err.Error()))
	}
}
