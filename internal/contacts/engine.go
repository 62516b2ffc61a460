// Package contacts keeps the canonical set of emergency contacts, merged from
// the remote store, the local cache and the device address book.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/checksum"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/phone"
	"github.com/starford/trailguard/internal/ports"
)

// Event types emitted by the engine.
const EventContactsChanged = "contacts.changed"

// Cache is the local persistence the engine needs.
type Cache interface {
	SaveRoster(contacts []models.Contact, fingerprint string) error
	LoadRoster() ([]models.Contact, string, bool, error)
}

// Options configures an Engine. Remote and Device may be nil.
type Options struct {
	UserID      string
	Normalizer  *phone.Normalizer
	Remote      ports.ContactStore
	Cache       Cache
	Device      ports.DeviceContacts
	SyncTimeout time.Duration
	Events      ports.EventSink
	Logger      *slog.Logger
}

// Engine merges contact sources and publishes the resulting ContactSet.
// Current never blocks; Sync and Select are serialized.
type Engine struct {
	userID      string
	normalizer  *phone.Normalizer
	remote      ports.ContactStore
	cache       Cache
	device      ports.DeviceContacts
	syncTimeout time.Duration
	events      ports.EventSink
	logger      *slog.Logger

	group   singleflight.Group
	writeMu sync.Mutex
	current atomic.Pointer[models.ContactSet]

	mu        sync.Mutex // guards roster and listeners
	roster    []models.Contact
	listeners []func(models.ContactSet)
}

// New creates an Engine with an empty current set.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = ports.NopSink{}
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 10 * time.Second
	}
	e := &Engine{
		userID:      opts.UserID,
		normalizer:  opts.Normalizer,
		remote:      opts.Remote,
		cache:       opts.Cache,
		device:      opts.Device,
		syncTimeout: opts.SyncTimeout,
		events:      opts.Events,
		logger:      opts.Logger,
	}
	empty := models.NewContactSet(nil, models.ContactSourceEmpty, checksum.Contacts(nil), time.Time{})
	e.current.Store(&empty)
	return e
}

// Current returns the latest published set.
func (e *Engine) Current() models.ContactSet {
	return *e.current.Load()
}

// Roster returns every known contact, selected or not.
func (e *Engine) Roster() []models.Contact {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Contact, len(e.roster))
	copy(out, e.roster)
	return out
}

// OnChange registers fn to be called whenever the published set changes.
func (e *Engine) OnChange(fn func(models.ContactSet)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// Restore publishes the locally cached roster so alerts can be sent before
// the first network sync completes.
func (e *Engine) Restore() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cached, _, found, err := e.cache.LoadRoster()
	if err != nil {
		return fmt.Errorf("contacts: restore: %w", err)
	}
	if !found {
		return nil
	}
	res := Merge(e.normalizer, Sources{Cached: cached, CacheFound: true})
	set := e.publish(res.Roster, res.Source)
	e.logger.Info("contacts: restored from cache", slog.Int("selected", set.Len()), slog.Int("roster", len(res.Roster)))
	return nil
}

// Sync reloads every source, merges them and publishes the result.
// Concurrent callers share one run. When the remote store cannot be reached
// the cached selections are used; the returned set is valid and err wraps
// apperr.ErrStoreUnavailable.
func (e *Engine) Sync(ctx context.Context) (models.ContactSet, error) {
	v, err, _ := e.group.Do("sync", func() (any, error) {
		return e.sync(ctx)
	})
	set, _ := v.(models.ContactSet)
	return set, err
}

func (e *Engine) sync(ctx context.Context) (models.ContactSet, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var src Sources
	var remoteErr error
	if e.remote != nil {
		loadCtx, cancel := context.WithTimeout(ctx, e.syncTimeout)
		src.Remote, remoteErr = e.remote.LoadSelections(loadCtx, e.userID)
		cancel()
		src.RemoteOK = remoteErr == nil
		if remoteErr != nil {
			e.logger.Warn("contacts: remote load failed, using cache", slog.String("error", remoteErr.Error()))
		}
	}

	cached, _, found, err := e.cache.LoadRoster()
	if err != nil {
		e.logger.Warn("contacts: cache load failed", slog.String("error", err.Error()))
	}
	src.Cached, src.CacheFound = cached, found && err == nil

	if e.device != nil {
		device, err := e.device.ImportContacts()
		if err != nil {
			e.logger.Warn("contacts: device import failed", slog.String("error", err.Error()))
		}
		src.Device = device
	}

	res := Merge(e.normalizer, src)
	for _, r := range res.Rejections {
		e.logger.Warn("contacts: dropped contact",
			slog.String("name", r.DisplayName),
			slog.String("number", r.RawNumber),
			slog.String("reason", r.Reason))
	}

	set := e.publish(res.Roster, res.Source)

	// The cache only learns from authoritative merges: a remote answer, or
	// local-only mode where no remote store is configured.
	if e.remote == nil || src.RemoteOK {
		if err := e.cache.SaveRoster(res.Roster, checksum.Contacts(res.Roster)); err != nil {
			e.logger.Warn("contacts: cache save failed", slog.String("error", err.Error()))
		}
	}

	e.logger.Info("contacts: synced",
		slog.String("source", string(set.Source())),
		slog.Int("selected", set.Len()),
		slog.Int("roster", len(res.Roster)))

	if remoteErr != nil {
		return set, fmt.Errorf("contacts: sync: %w: %v", apperr.ErrStoreUnavailable, remoteErr)
	}
	return set, nil
}

// Select marks exactly the given numbers as selected. Every number must
// already be in the roster. The selection is cached locally before it is
// saved remotely; a remote failure returns the new set together with an
// error wrapping apperr.ErrStoreUnavailable.
func (e *Engine) Select(ctx context.Context, numbers []string) (models.ContactSet, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	want := make(map[string]struct{}, len(numbers))
	for _, raw := range numbers {
		canonical, err := e.normalizer.Normalize(raw)
		if err != nil {
			return e.Current(), err
		}
		want[canonical] = struct{}{}
	}

	roster := e.Roster()
	matched := 0
	for i := range roster {
		_, ok := want[roster[i].PhoneNumber]
		roster[i].Selected = ok
		if ok {
			matched++
		}
	}
	if matched != len(want) {
		return e.Current(), fmt.Errorf("contacts: select: %d of %d numbers unknown: %w", len(want)-matched, len(want), apperr.ErrNotFound)
	}

	source := models.ContactSourceCache
	var remoteErr error
	if e.remote != nil {
		saveCtx, cancel := context.WithTimeout(ctx, e.syncTimeout)
		remoteErr = e.remote.SaveSelections(saveCtx, e.userID, roster)
		cancel()
		if remoteErr == nil {
			source = models.ContactSourceRemote
		}
	}

	if err := e.cache.SaveRoster(roster, checksum.Contacts(roster)); err != nil {
		e.logger.Warn("contacts: cache save failed", slog.String("error", err.Error()))
	}
	set := e.publish(roster, source)

	if remoteErr != nil {
		e.logger.Warn("contacts: remote save failed", slog.String("error", remoteErr.Error()))
		return set, fmt.Errorf("contacts: select: %w: %v", apperr.ErrStoreUnavailable, remoteErr)
	}
	return set, nil
}

// publish swaps in a new set built from roster and notifies listeners when
// the selected contacts changed.
func (e *Engine) publish(roster []models.Contact, source models.ContactSource) models.ContactSet {
	selected := selectedOf(roster)
	set := models.NewContactSet(selected, source, checksum.Contacts(selected), time.Now())
	prev := e.current.Swap(&set)

	e.mu.Lock()
	e.roster = append([]models.Contact(nil), roster...)
	listeners := append([]func(models.ContactSet){}, e.listeners...)
	e.mu.Unlock()

	if prev != nil && prev.Fingerprint() == set.Fingerprint() {
		return set
	}
	for _, fn := range listeners {
		fn(set)
	}
	e.events.Emit(EventContactsChanged, set.View())
	return set
}

// IsDegraded reports whether err only signals that the remote store was
// unavailable while a usable set was still produced.
func IsDegraded(err error) bool {
	return errors.Is(err, apperr.ErrStoreUnavailable)
}
