// Package storage reads device address-book exports dropped into the import
// directory and watches it for changes.
package storage

import (
	"time"

	"github.com/starford/trailguard/internal/models"
)

// ExportFile describes one export file in the import directory.
type ExportFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for import directory operations.
type Provider interface {
	// Root returns the absolute path of the import directory.
	Root() string
	// List returns every supported export file, sorted by path.
	List() ([]ExportFile, error)
	// Read returns the raw bytes of the file at path (relative to the import root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the import root).
	Write(path string, content []byte) error
	// ImportContacts parses every export file into device contacts.
	ImportContacts() ([]models.DeviceContact, error)
}
