package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/trailguard/internal/models"
)

// AppendLocation adds one entry to the local location log.
func (db *DB) AppendLocation(rec models.LocationRecord) error {
	var (
		hasFix     bool
		lat, lng   float64
		capturedAt sql.NullTime
		battery    sql.NullInt64
	)
	if rec.Position != nil {
		hasFix = true
		lat, lng = rec.Position.Latitude, rec.Position.Longitude
		capturedAt = sql.NullTime{Time: rec.Position.CapturedAt.UTC(), Valid: true}
	}
	if rec.BatteryLevel != nil {
		battery = sql.NullInt64{Int64: int64(*rec.BatteryLevel), Valid: true}
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := db.conn.Exec(`
		INSERT INTO locations (journey_id, user_id, alert, has_fix, latitude, longitude, captured_at, battery, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.JourneyID, rec.UserID, string(rec.Alert), hasFix, lat, lng, capturedAt, battery, rec.Message, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("store: append location: %w", err)
	}
	return nil
}

// RecentLocations returns up to limit entries, newest first.
func (db *DB) RecentLocations(limit int) ([]models.LocationRecord, error) {
	rows, err := db.conn.Query(`
		SELECT journey_id, user_id, alert, has_fix, latitude, longitude, captured_at, battery, message, created_at
		FROM locations ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent locations: %w", err)
	}
	defer rows.Close()

	var out []models.LocationRecord
	for rows.Next() {
		var (
			rec        models.LocationRecord
			alert      string
			hasFix     bool
			lat, lng   float64
			capturedAt sql.NullTime
			battery    sql.NullInt64
		)
		if err := rows.Scan(&rec.JourneyID, &rec.UserID, &alert, &hasFix, &lat, &lng, &capturedAt, &battery, &rec.Message, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Alert = models.AlertKind(alert)
		if hasFix {
			rec.Position = &models.Position{Latitude: lat, Longitude: lng, CapturedAt: capturedAt.Time}
		}
		if battery.Valid {
			b := int(battery.Int64)
			rec.BatteryLevel = &b
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordOutcome stores one delivery outcome.
func (db *DB) RecordOutcome(o models.DeliveryOutcome) error {
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO deliveries (dispatch_id, message_id, channel, destination, alert, outcome, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, o.DispatchID, o.MessageID, o.Channel, o.Destination, string(o.Alert), string(o.Outcome), o.Reason, at.UTC())
	if err != nil {
		return fmt.Errorf("store: record outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (db *DB) RecentOutcomes(limit int) ([]models.DeliveryOutcome, error) {
	rows, err := db.conn.Query(`
		SELECT dispatch_id, message_id, channel, destination, alert, outcome, reason, at
		FROM deliveries ORDER BY at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.DeliveryOutcome
	for rows.Next() {
		var (
			o              models.DeliveryOutcome
			alert, outcome string
		)
		if err := rows.Scan(&o.DispatchID, &o.MessageID, &o.Channel, &o.Destination, &alert, &outcome, &o.Reason, &o.At); err != nil {
			return nil, err
		}
		o.Alert = models.AlertKind(alert)
		o.Outcome = models.OutcomeKind(outcome)
		out = append(out, o)
	}
	return out, rows.Err()
}
