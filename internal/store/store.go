package store

import (
	"time"

	"github.com/starford/trailguard/internal/models"
)

// Cache defines the local persistence operations used by the safety core.
// Consumers should depend on this interface rather than the concrete *DB type.
type Cache interface {
	SaveRoster(contacts []models.Contact, fingerprint string) error
	LoadRoster() ([]models.Contact, string, bool, error)
	AppendLocation(rec models.LocationRecord) error
	RecentLocations(limit int) ([]models.LocationRecord, error)
	RecordOutcome(o models.DeliveryOutcome) error
	RecentOutcomes(limit int) ([]models.DeliveryOutcome, error)
	StartJourney(rec models.JourneyRecord) error
	FinishJourney(id string, endedAt time.Time, distance float64) error
	RecentJourneys(limit int) ([]models.JourneyRecord, error)
	Close() error
}

// Verify *DB satisfies Cache at compile time.
var _ Cache = (*DB)(nil)
