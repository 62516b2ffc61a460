package models

import "time"

// AlertKind identifies the purpose of an outgoing message.
type AlertKind string

const (
	AlertJourneyUpdate AlertKind = "journey_update"
	AlertSOS           AlertKind = "sos"
	AlertSafeArrival   AlertKind = "safe_arrival"
	AlertLowBattery    AlertKind = "low_battery"
)

// OutcomeKind is the result of one send to one destination.
type OutcomeKind string

const (
	OutcomeSent           OutcomeKind = "sent"
	OutcomeFailed         OutcomeKind = "failed"
	OutcomeDelivered      OutcomeKind = "delivered"
	OutcomeDeliveryFailed OutcomeKind = "delivery_failed"
)

// DeliveryOutcome reports what happened to a message sent to one destination.
type DeliveryOutcome struct {
	DispatchID  string      `json:"dispatch_id,omitempty"`
	MessageID   string      `json:"message_id,omitempty"`
	Channel     string      `json:"channel"`
	Destination string      `json:"destination"`
	Alert       AlertKind   `json:"alert"`
	Outcome     OutcomeKind `json:"outcome"`
	Reason      string      `json:"reason,omitempty"`
	At          time.Time   `json:"at"`
}

// ChannelResult counts accepted and rejected sends for one channel.
type ChannelResult struct {
	Channel string `json:"channel"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

// DispatchReport summarises one fan-out.
type DispatchReport struct {
	ID            string            `json:"id"`
	Alert         AlertKind         `json:"alert"`
	Text          string            `json:"text"`
	PositionKnown bool              `json:"position_known"`
	Channels      []ChannelResult   `json:"channels"`
	Outcomes      []DeliveryOutcome `json:"outcomes"`
	At            time.Time         `json:"at"`
}

// SentCount is the number of sends accepted across all channels.
func (r DispatchReport) SentCount() int {
	n := 0
	for _, c := range r.Channels {
		n += c.Sent
	}
	return n
}

// Succeeded reports whether at least one destination was reached.
func (r DispatchReport) Succeeded() bool {
	return r.SentCount() > 0
}

// LocationRecord is one entry of the location log.
type LocationRecord struct {
	JourneyID    string    `json:"journey_id,omitempty"`
	UserID       string    `json:"user_id"`
	Alert        AlertKind `json:"alert"`
	Position     *Position `json:"position,omitempty"`
	BatteryLevel *int      `json:"battery_level,omitempty"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// SOSSource records what raised an SOS.
type SOSSource string

const (
	SOSManual SOSSource = "manual"
	SOSVoice  SOSSource = "voice"
)

// Transcript is one recognizer result.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// VoicePrompt is a keyword match waiting for the user to confirm an SOS.
type VoicePrompt struct {
	ID         string    `json:"id"`
	Transcript string    `json:"transcript"`
	Keyword    string    `json:"keyword"`
	CreatedAt  time.Time `json:"created_at"`
}
