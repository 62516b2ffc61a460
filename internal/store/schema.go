// Package store keeps trailguard's local SQLite cache: the last contact
// roster (used when the remote store is unreachable), the location log,
// delivery outcomes and journey history.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS contacts (
	phone        TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	raw          TEXT NOT NULL DEFAULT '',
	selected     INTEGER NOT NULL DEFAULT 0,
	position     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS roster_meta (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	fingerprint TEXT NOT NULL,
	saved_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS locations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	journey_id  TEXT NOT NULL DEFAULT '',
	user_id     TEXT NOT NULL DEFAULT '',
	alert       TEXT NOT NULL,
	has_fix     INTEGER NOT NULL DEFAULT 0,
	latitude    REAL NOT NULL DEFAULT 0,
	longitude   REAL NOT NULL DEFAULT 0,
	captured_at DATETIME,
	battery     INTEGER,
	message     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS deliveries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	dispatch_id TEXT NOT NULL DEFAULT '',
	message_id  TEXT NOT NULL DEFAULT '',
	channel     TEXT NOT NULL,
	destination TEXT NOT NULL,
	alert       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS journeys (
	id          TEXT PRIMARY KEY,
	started_by  TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	ended_at    DATETIME,
	distance_m  REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_locations_created ON locations(created_at);
CREATE INDEX IF NOT EXISTS idx_deliveries_at ON deliveries(at);
CREATE INDEX IF NOT EXISTS idx_journeys_started ON journeys(started_at);
`

// DB wraps a sql.DB with cache-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
