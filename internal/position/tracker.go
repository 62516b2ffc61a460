// Package position implements ports.PositionSource and ports.BatteryGauge
// over fixes pushed by the device agent.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
)

// Tracker holds the most recent device fix and battery level.
type Tracker struct {
	mu         sync.Mutex
	last       *models.Position
	enabled    bool
	battery    int
	hasBattery bool
	waiters    map[chan models.Position]struct{}
}

// NewTracker returns an enabled Tracker without any fix.
func NewTracker() *Tracker {
	return &Tracker{
		enabled: true,
		waiters: make(map[chan models.Position]struct{}),
	}
}

// Report records a fix. Fixes older than the current one are ignored and
// Report returns false for them.
func (t *Tracker) Report(p models.Position) (bool, error) {
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return false, fmt.Errorf("position: coordinates out of range: %f,%f: %w", p.Latitude, p.Longitude, apperr.ErrInvalidInput)
	}
	if p.Speed != nil && *p.Speed < 0 {
		return false, fmt.Errorf("position: negative speed %f: %w", *p.Speed, apperr.ErrInvalidInput)
	}
	if p.CapturedAt.IsZero() {
		p.CapturedAt = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last != nil && p.CapturedAt.Before(t.last.CapturedAt) {
		return false, nil
	}
	t.last = &p
	for ch := range t.waiters {
		select {
		case ch <- p:
		default:
		}
	}
	return true, nil
}

// SetEnabled records whether the device location capability is on.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// SetBattery records the device battery level in percent.
func (t *Tracker) SetBattery(level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("position: battery level %d out of range: %w", level, apperr.ErrInvalidInput)
	}
	t.mu.Lock()
	t.battery, t.hasBattery = level, true
	t.mu.Unlock()
	return nil
}

func (t *Tracker) BatteryLevel() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.battery, t.hasBattery
}

func (t *Tracker) IsEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Tracker) LastKnown() (models.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return models.Position{}, false
	}
	return *t.last, true
}

// RequestFresh waits for the next reported fix, up to timeout.
func (t *Tracker) RequestFresh(ctx context.Context, timeout time.Duration) (models.Position, bool) {
	if !t.IsEnabled() {
		return models.Position{}, false
	}
	ch := make(chan models.Position, 1)
	t.mu.Lock()
	t.waiters[ch] = struct{}{}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.waiters, ch)
		t.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-ch:
		return p, true
	case <-timer.C:
		return models.Position{}, false
	case <-ctx.Done():
		return models.Position{}, false
	}
}

// Subscribe delivers the latest fix to fn at most once per interval, and
// only when it is newer than the last one delivered.
func (t *Tracker) Subscribe(interval time.Duration, fn func(models.Position)) (cancel func()) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var delivered time.Time
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p, ok := t.LastKnown()
				if !ok || !p.CapturedAt.After(delivered) {
					continue
				}
				delivered = p.CapturedAt
				fn(p)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}
}
