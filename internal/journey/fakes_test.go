package journey

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/trailguard/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePositions struct {
	mu       sync.Mutex
	enabled  bool
	last     *models.Position
	fresh    *models.Position
	subFn    func(models.Position)
	canceled int
}

func (f *fakePositions) LastKnown() (models.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return models.Position{}, false
	}
	return *f.last, true
}

func (f *fakePositions) RequestFresh(context.Context, time.Duration) (models.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fresh == nil {
		return models.Position{}, false
	}
	return *f.fresh, true
}

func (f *fakePositions) Subscribe(_ time.Duration, fn func(models.Position)) func() {
	f.mu.Lock()
	f.subFn = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.canceled++
		f.mu.Unlock()
	}
}

func (f *fakePositions) IsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakePositions) setSpeed(kph float64) {
	mps := kph / 3.6
	f.mu.Lock()
	at := time.Now()
	if f.last != nil && !at.After(f.last.CapturedAt) {
		at = f.last.CapturedAt.Add(time.Nanosecond)
	}
	f.last = &models.Position{Latitude: 12.97, Longitude: 77.59, Speed: &mps, CapturedAt: at}
	f.mu.Unlock()
}

type fakeContacts struct{ set models.ContactSet }

func (f fakeContacts) Current() models.ContactSet { return f.set }

func someContacts() fakeContacts {
	return fakeContacts{set: models.NewContactSet([]models.Contact{
		{DisplayName: "Asha", PhoneNumber: "+919800000001", Selected: true},
	}, models.ContactSourceRemote, "fp", time.Now())}
}

type fakeArrival struct {
	mu      sync.Mutex
	calls   []*models.Position
	ids     []string
	release chan struct{}
	entered chan struct{}
}

func (f *fakeArrival) SafeArrival(_ context.Context, id string, pos *models.Position) (models.DispatchReport, error) {
	if f.entered != nil {
		close(f.entered)
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pos)
	f.ids = append(f.ids, id)
	return models.DispatchReport{Alert: models.AlertSafeArrival}, nil
}

func (f *fakeArrival) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRunner struct {
	mu      sync.Mutex
	starts  int
	stops   int
	running bool
}

func (f *fakeRunner) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.running = true
	return nil
}

func (f *fakeRunner) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []models.JourneyRecord
	finished map[string]float64
}

func (f *fakeRecorder) StartJourney(rec models.JourneyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, rec)
	return nil
}

func (f *fakeRecorder) FinishJourney(id string, _ time.Time, distance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = make(map[string]float64)
	}
	f.finished[id] = distance
	return nil
}

type env struct {
	machine   *Machine
	positions *fakePositions
	arrival   *fakeArrival
	runner    *fakeRunner
	recorder  *fakeRecorder
}

func newEnv(contacts fakeContacts) *env {
	e := &env{
		positions: &fakePositions{enabled: true},
		arrival:   &fakeArrival{},
		runner:    &fakeRunner{},
		recorder:  &fakeRecorder{},
	}
	e.machine = NewMachine(Config{FreshFixTimeout: 10 * time.Millisecond}, Deps{
		Contacts:  contacts,
		Positions: e.positions,
		Arrival:   e.arrival,
		Recorder:  e.recorder,
		Logger:    quietLogger(),
	})
	e.machine.Attach(e.runner)
	return e
}
