package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/safety"
)

// JourneyResponse is the current journey plus session context.
type JourneyResponse struct {
	Session         safety.Session       `json:"session"`
	Journey         models.JourneyState  `json:"journey"`
	LocationEnabled bool                 `json:"location_enabled"`
	PendingPrompts  []models.VoicePrompt `json:"pending_prompts"`
}

// ContactsResponse is returned by contact reads and writes. Degraded is set
// when the remote store could not be reached and the result came from the
// local cache.
type ContactsResponse struct {
	Selected models.ContactSetView `json:"selected"`
	Roster   []models.Contact      `json:"roster"`
	Degraded bool                  `json:"degraded"`
	Warning  string                `json:"warning,omitempty"`
}

// SelectContactsRequest replaces the selection.
type SelectContactsRequest struct {
	Numbers []string `json:"numbers" example:"+919876543210"`
}

// Validate validates the request.
func (r *SelectContactsRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Numbers, validation.NotNil, validation.Length(0, 50),
			validation.Each(validation.Required, validation.Length(1, 32))),
	)
}

// PositionRequest reports a device fix.
type PositionRequest struct {
	Latitude     *float64   `json:"latitude" example:"12.9716"`
	Longitude    *float64   `json:"longitude" example:"77.5946"`
	SpeedMps     *float64   `json:"speed_mps,omitempty" example:"4.2"`
	CapturedAt   *time.Time `json:"captured_at,omitempty"`
	BatteryLevel *int       `json:"battery_level,omitempty" example:"64"`
}

// Validate validates the request.
func (r *PositionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Latitude, validation.NotNil, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&r.Longitude, validation.NotNil, validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&r.SpeedMps, validation.Min(0.0)),
		validation.Field(&r.BatteryLevel, validation.Min(0), validation.Max(100)),
	)
}

// Position converts the request to a domain fix.
func (r *PositionRequest) Position() models.Position {
	p := models.Position{Latitude: *r.Latitude, Longitude: *r.Longitude, Speed: r.SpeedMps}
	if r.CapturedAt != nil {
		p.CapturedAt = *r.CapturedAt
	}
	return p
}

// PositionResponse reports whether the fix was accepted as the newest one.
type PositionResponse struct {
	Accepted bool `json:"accepted"`
}

// LocationEnabledRequest toggles the device location capability.
type LocationEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// Validate validates the request.
func (r *LocationEnabledRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Enabled, validation.NotNil),
	)
}

// TranscriptRequest relays one recognizer result.
type TranscriptRequest struct {
	Text  string `json:"text" example:"please help me"`
	Final bool   `json:"final"`
}

// Validate validates the request.
func (r *TranscriptRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Text, validation.Required, validation.Length(1, 2000)),
	)
}

// ChannelStatusRequest is a delivery status callback. Gateways may post it
// as JSON or as a form with MessageSid / MessageStatus / ErrorMessage.
type ChannelStatusRequest struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

// Validate validates the request.
func (r *ChannelStatusRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.MessageID, validation.Required),
		validation.Field(&r.Status, validation.Required),
	)
}

// ImportResponse is returned after a contact export upload.
type ImportResponse struct {
	Filename string                `json:"filename"`
	Size     int                   `json:"size"`
	Selected models.ContactSetView `json:"selected"`
	Roster   []models.Contact      `json:"roster"`
}
