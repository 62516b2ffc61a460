// Package models defines the domain types for trailguard.
package models

import "time"

// Contact is one emergency contact after phone-number normalization.
type Contact struct {
	DisplayName   string `json:"display_name"`
	PhoneNumber   string `json:"phone_number"`
	Selected      bool   `json:"selected"`
	SourceRawForm string `json:"source_raw_form,omitempty"`
}

// RawForm returns the "name\nnumber" record the contact was imported from,
// synthesising it when the source did not carry one.
func (c Contact) RawForm() string {
	if c.SourceRawForm != "" {
		return c.SourceRawForm
	}
	return c.DisplayName + "\n" + c.PhoneNumber
}

// DeviceContact is an entry read from the device address book export.
type DeviceContact struct {
	Name           string `json:"name" yaml:"name"`
	RawPhoneNumber string `json:"phone" yaml:"phone"`
}

// ContactSource records where the winning selections of a ContactSet came from.
type ContactSource string

const (
	ContactSourceRemote ContactSource = "remote"
	ContactSourceCache  ContactSource = "cache"
	ContactSourceEmpty  ContactSource = "empty"
)

// ContactSet is the immutable, ordered set of selected contacts that alerts
// are sent to. A new value is built on every sync.
type ContactSet struct {
	contacts    []Contact
	fingerprint string
	source      ContactSource
	syncedAt    time.Time
}

// NewContactSet copies contacts into a new set.
func NewContactSet(contacts []Contact, source ContactSource, fingerprint string, syncedAt time.Time) ContactSet {
	cp := make([]Contact, len(contacts))
	copy(cp, contacts)
	return ContactSet{contacts: cp, fingerprint: fingerprint, source: source, syncedAt: syncedAt}
}

// Contacts returns a copy of the contacts in the set.
func (s ContactSet) Contacts() []Contact {
	cp := make([]Contact, len(s.contacts))
	copy(cp, s.contacts)
	return cp
}

// Destinations returns the canonical phone numbers in set order.
func (s ContactSet) Destinations() []string {
	out := make([]string, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c.PhoneNumber)
	}
	return out
}

func (s ContactSet) Len() int { return len(s.contacts) }
func (s ContactSet) IsEmpty() bool { return len(s.contacts) == 0 }
func (s ContactSet) Fingerprint() string { return s.fingerprint }
func (s ContactSet) Source() ContactSource { return s.source }
func (s ContactSet) SyncedAt() time.Time { return s.syncedAt }

// ContactSetView is the JSON shape of a ContactSet.
type ContactSetView struct {
	Contacts    []Contact     `json:"contacts"`
	Fingerprint string        `json:"fingerprint"`
	Source      ContactSource `json:"source"`
	SyncedAt    time.Time     `json:"synced_at"`
}

// View returns a serialisable copy of the set.
func (s ContactSet) View() ContactSetView {
	return ContactSetView{
		Contacts:    s.Contacts(),
		Fingerprint: s.fingerprint,
		Source:      s.source,
		SyncedAt:    s.syncedAt,
	}
}
