// Package ports declares the boundaries between the safety core and the
// outside world: device sensors, messaging channels, the remote document
// store and the speech recognizer.
package ports

import (
	"context"
	"time"

	"github.com/starford/trailguard/internal/models"
)

// PositionSource provides location fixes from the device.
type PositionSource interface {
	LastKnown() (models.Position, bool)
	// RequestFresh waits up to timeout for a fix newer than the call.
	RequestFresh(ctx context.Context, timeout time.Duration) (models.Position, bool)
	// Subscribe invokes fn with new fixes at most once per interval until cancel is called.
	Subscribe(interval time.Duration, fn func(models.Position)) (cancel func())
	IsEnabled() bool
}

// BatteryGauge reports the device battery level in percent.
type BatteryGauge interface {
	BatteryLevel() (int, bool)
}

// Receipt is returned for an accepted send. Outcomes yields later delivery
// reports for the message and is closed when no more will arrive.
type Receipt struct {
	MessageID string
	Outcomes  <-chan models.DeliveryOutcome
}

// AlertChannel sends a text message to one destination.
type AlertChannel interface {
	Name() string
	Send(ctx context.Context, destination, text string) (*Receipt, error)
}

// ContactStore persists contact selections remotely.
type ContactStore interface {
	LoadSelections(ctx context.Context, userID string) ([]models.Contact, error)
	SaveSelections(ctx context.Context, userID string, contacts []models.Contact) error
}

// LocationLogStore appends location records remotely.
type LocationLogStore interface {
	Append(ctx context.Context, record models.LocationRecord) error
}

// ListenSession is one recognizer utterance. Results is closed when the
// session ends; Err then reports why.
type ListenSession interface {
	Results() <-chan models.Transcript
	Err() error
	Stop() error
}

// SpeechService starts recognizer sessions.
type SpeechService interface {
	Available() bool
	StartListening(ctx context.Context) (ListenSession, error)
}

// DeviceContacts imports the device address book.
type DeviceContacts interface {
	ImportContacts() ([]models.DeviceContact, error)
}

// Confirmer asks the user to confirm a voice-triggered SOS.
type Confirmer interface {
	Confirm(ctx context.Context, prompt models.VoicePrompt) (bool, error)
}

// EventSink receives domain events for live clients.
type EventSink interface {
	Emit(eventType string, data any)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(string, any) {}
