// Package apperr holds the sentinel errors shared across trailguard packages.
// Callers wrap them with fmt.Errorf("...: %w") and test with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrNotActive    = errors.New("journey not active")
	ErrInvalidInput = errors.New("invalid input")

	ErrNoContactsSelected    = errors.New("no emergency contacts selected")
	ErrPositionUnavailable   = errors.New("position unavailable")
	ErrNormalizationRejected = errors.New("phone number rejected")
	ErrChannelSendFailed     = errors.New("alert channel send failed")
	ErrStoreUnavailable      = errors.New("remote store unavailable")
	ErrRecognizerError       = errors.New("speech recognizer error")
)
