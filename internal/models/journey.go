package models

import (
	"fmt"
	"time"
)

// Position is a single location fix.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      *float64  `json:"speed_mps,omitempty"` // metres per second
	CapturedAt time.Time `json:"captured_at"`
}

// SpeedKph returns the reported speed in km/h, if any.
func (p Position) SpeedKph() (float64, bool) {
	if p.Speed == nil {
		return 0, false
	}
	return *p.Speed * 3.6, true
}

// MapsURL returns a map link for the fix.
func (p Position) MapsURL() string {
	return fmt.Sprintf("https://maps.google.com/?q=%.6f,%.6f", p.Latitude, p.Longitude)
}

// JourneyPhase is the lifecycle phase of the journey state machine.
type JourneyPhase string

const (
	PhaseIdle   JourneyPhase = "idle"
	PhaseActive JourneyPhase = "active"
	PhaseEnding JourneyPhase = "ending"
)

// JourneyTrigger records what started a journey.
type JourneyTrigger string

const (
	TriggerManual JourneyTrigger = "manual"
	TriggerAuto   JourneyTrigger = "auto"
)

// JourneyState is a point-in-time copy of the journey state machine.
type JourneyState struct {
	Phase             JourneyPhase   `json:"phase"`
	ID                string         `json:"id,omitempty"`
	Trigger           JourneyTrigger `json:"trigger,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	LastKnownPosition *Position      `json:"last_known_position,omitempty"`
	DistanceMeters    float64        `json:"distance_meters"`
	LastAlertSentAt   *time.Time     `json:"last_alert_sent_at,omitempty"`
}

// Journey record statuses.
const (
	JourneyStatusActive    = "active"
	JourneyStatusCompleted = "completed"
)

// JourneyRecord is the persisted history entry of one journey.
type JourneyRecord struct {
	ID             string         `json:"id"`
	Trigger        JourneyTrigger `json:"trigger"`
	Status         string         `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	DistanceMeters float64        `json:"distance_meters"`
}
