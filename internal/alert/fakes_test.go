package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/trailguard/internal/message"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentMessage struct {
	dest, text string
	ctxErr     error
}

type fakeChannel struct {
	name      string
	fail      bool
	outcomes  bool
	block     chan struct{}
	entered   chan struct{}
	mu        sync.Mutex
	sent      []sentMessage
	inFlight  int
	maxFlight int
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, dest, text string) (*ports.Receipt, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.fail {
		return nil, errors.New("radio off")
	}
	f.sent = append(f.sent, sentMessage{dest: dest, text: text, ctxErr: ctx.Err()})
	r := &ports.Receipt{MessageID: dest + "-" + f.name}
	if f.outcomes {
		ch := make(chan models.DeliveryOutcome, 1)
		ch <- models.DeliveryOutcome{Outcome: models.OutcomeDelivered}
		close(ch)
		r.Outcomes = ch
	}
	return r, nil
}

func (f *fakeChannel) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeContacts struct {
	mu  sync.Mutex
	set models.ContactSet
}

func (f *fakeContacts) Current() models.ContactSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

func contactsOf(numbers ...string) *fakeContacts {
	var cs []models.Contact
	for _, n := range numbers {
		cs = append(cs, models.Contact{DisplayName: n, PhoneNumber: n, Selected: true})
	}
	return &fakeContacts{set: models.NewContactSet(cs, models.ContactSourceRemote, "fp", time.Now())}
}

type fakePositions struct {
	mu         sync.Mutex
	last       *models.Position
	fresh      *models.Position
	freshCalls int
	freshErr   error
}

func (f *fakePositions) LastKnown() (models.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return models.Position{}, false
	}
	return *f.last, true
}

func (f *fakePositions) RequestFresh(ctx context.Context, _ time.Duration) (models.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freshCalls++
	f.freshErr = ctx.Err()
	if f.fresh == nil {
		return models.Position{}, false
	}
	return *f.fresh, true
}

func (f *fakePositions) Subscribe(time.Duration, func(models.Position)) func() { return func() {} }

func (f *fakePositions) IsEnabled() bool { return true }

type fakeBattery struct{ level int }

func (f fakeBattery) BatteryLevel() (int, bool) { return f.level, true }

type fakeJournal struct {
	mu        sync.Mutex
	locations []models.LocationRecord
	outcomes  []models.DeliveryOutcome
}

func (f *fakeJournal) AppendLocation(rec models.LocationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, rec)
	return nil
}

func (f *fakeJournal) RecordOutcome(o models.DeliveryOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
	return nil
}

func (f *fakeJournal) outcomeKinds() map[models.OutcomeKind]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[models.OutcomeKind]int)
	for _, o := range f.outcomes {
		out[o.Outcome]++
	}
	return out
}

type fakeLocationLog struct {
	mu      sync.Mutex
	records []models.LocationRecord
}

func (f *fakeLocationLog) Append(_ context.Context, rec models.LocationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

type fakeJourney struct {
	mu     sync.Mutex
	marked []time.Time
}

func (f *fakeJourney) JourneyID() string { return "journey-1" }

func (f *fakeJourney) LastKnownPosition() (models.Position, bool) { return models.Position{}, false }

func (f *fakeJourney) MarkAlertSent(at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, at)
}

func (f *fakeJourney) markCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.marked)
}

type harness struct {
	dispatcher *Dispatcher
	contacts   *fakeContacts
	positions  *fakePositions
	journal    *fakeJournal
	remoteLog  *fakeLocationLog
	channels   []*fakeChannel
}

func newHarness(contacts *fakeContacts, battery ports.BatteryGauge, channels ...*fakeChannel) *harness {
	composer, err := message.NewComposer(time.UTC)
	if err != nil {
		panic(err)
	}
	h := &harness{
		contacts:  contacts,
		positions: &fakePositions{},
		journal:   &fakeJournal{},
		remoteLog: &fakeLocationLog{},
		channels:  channels,
	}
	var chs []ports.AlertChannel
	for _, c := range channels {
		chs = append(chs, c)
	}
	h.dispatcher, err = NewDispatcher(Config{
		UserID:          "u1",
		DisplayName:     "Asha",
		SendTimeout:     time.Second,
		OutcomeTimeout:  time.Second,
		FreshFixTimeout: 10 * time.Millisecond,
	}, Deps{
		Contacts:    contacts,
		Positions:   h.positions,
		Battery:     battery,
		Composer:    composer,
		Channels:    chs,
		LocationLog: h.remoteLog,
		Journal:     h.journal,
		Logger:      quietLogger(),
	})
	if err != nil {
		panic(err)
	}
	return h
}

func freshFix() *models.Position {
	return &models.Position{Latitude: 12.97, Longitude: 77.59, CapturedAt: time.Now()}
}
