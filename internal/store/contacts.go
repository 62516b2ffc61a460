package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/trailguard/internal/models"
)

// SaveRoster replaces the cached roster with contacts, preserving order.
func (db *DB) SaveRoster(contacts []models.Contact, fingerprint string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM contacts`); err != nil {
		return fmt.Errorf("store: clear contacts: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO contacts (phone, name, raw, selected, position) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare contact insert: %w", err)
	}
	defer stmt.Close()
	for i, c := range contacts {
		if _, err := stmt.Exec(c.PhoneNumber, c.DisplayName, c.SourceRawForm, c.Selected, i); err != nil {
			return fmt.Errorf("store: insert contact: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO roster_meta (id, fingerprint, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			saved_at    = excluded.saved_at
	`, fingerprint, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: save roster meta: %w", err)
	}

	return tx.Commit()
}

// LoadRoster returns the cached roster and its fingerprint. found is false
// when no roster was ever saved.
func (db *DB) LoadRoster() ([]models.Contact, string, bool, error) {
	var fingerprint string
	err := db.conn.QueryRow(`SELECT fingerprint FROM roster_meta WHERE id = 1`).Scan(&fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("store: roster meta: %w", err)
	}

	rows, err := db.conn.Query(`SELECT phone, name, raw, selected FROM contacts ORDER BY position`)
	if err != nil {
		return nil, "", false, fmt.Errorf("store: load roster: %w", err)
	}
	defer rows.Close()

	var out []models.Contact
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.PhoneNumber, &c.DisplayName, &c.SourceRawForm, &c.Selected); err != nil {
			return nil, "", false, err
		}
		out = append(out, c)
	}
	return out, fingerprint, true, rows.Err()
}
