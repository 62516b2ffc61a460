package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
)

// StartJourney records a journey as active.
func (db *DB) StartJourney(rec models.JourneyRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO journeys (id, started_by, status, started_at, distance_m)
		VALUES (?, ?, ?, ?, 0)
	`, rec.ID, string(rec.Trigger), models.JourneyStatusActive, rec.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: start journey: %w", err)
	}
	return nil
}

// FinishJourney marks a journey completed.
func (db *DB) FinishJourney(id string, endedAt time.Time, distance float64) error {
	res, err := db.conn.Exec(`
		UPDATE journeys SET status = ?, ended_at = ?, distance_m = ? WHERE id = ?
	`, models.JourneyStatusCompleted, endedAt.UTC(), distance, id)
	if err != nil {
		return fmt.Errorf("store: finish journey: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: finish journey %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// RecentJourneys returns up to limit journeys, newest first.
func (db *DB) RecentJourneys(limit int) ([]models.JourneyRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, started_by, status, started_at, ended_at, distance_m
		FROM journeys ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent journeys: %w", err)
	}
	defer rows.Close()

	var out []models.JourneyRecord
	for rows.Next() {
		var (
			rec     models.JourneyRecord
			trigger string
			ended   sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &trigger, &rec.Status, &rec.StartedAt, &ended, &rec.DistanceMeters); err != nil {
			return nil, err
		}
		rec.Trigger = models.JourneyTrigger(trigger)
		if ended.Valid {
			t := ended.Time
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
