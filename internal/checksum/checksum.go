// Package checksum fingerprints contact snapshots so unchanged syncs can be
// detected without comparing every field.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/starford/trailguard/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Contacts fingerprints an ordered contact list. Order, numbers, names and
// selection flags all contribute.
func Contacts(contacts []models.Contact) string {
	h := sha256.New()
	for _, c := range contacts {
		h.Write([]byte(c.PhoneNumber))
		h.Write([]byte{0})
		h.Write([]byte(c.DisplayName))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatBool(c.Selected)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
