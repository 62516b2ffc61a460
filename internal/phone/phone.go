// Package phone canonicalizes free-form phone numbers into E.164-style
// "+<country code><digits>" strings.
package phone

import (
	"fmt"
	"strings"

	"github.com/starford/trailguard/internal/apperr"
)

const (
	minDigits = 7
	maxDigits = 15
)

// Normalizer turns user- or device-entered numbers into canonical form.
// The zero value is not usable; call New.
type Normalizer struct {
	countryCode string
	localLength int
}

// New returns a Normalizer that assumes countryCode for numbers of exactly
// localLength digits.
func New(countryCode string, localLength int) *Normalizer {
	return &Normalizer{
		countryCode: strings.TrimPrefix(countryCode, "+"),
		localLength: localLength,
	}
}

// Normalize returns the canonical form of raw or apperr.ErrNormalizationRejected.
// Normalize(Normalize(x)) == Normalize(x) for every accepted x.
func (n *Normalizer) Normalize(raw string) (string, error) {
	digits := digitsOnly(raw)
	if len(digits) < minDigits {
		return "", fmt.Errorf("%w: %q has %d digits", apperr.ErrNormalizationRejected, raw, len(digits))
	}

	cc := n.countryCode
	switch {
	case len(digits) == n.localLength:
		digits = cc + digits
	case len(digits) == 2*len(cc)+n.localLength && strings.HasPrefix(digits, cc+cc):
		digits = digits[len(cc):]
	}

	if len(digits) > maxDigits {
		return "", fmt.Errorf("%w: %q has %d digits", apperr.ErrNormalizationRejected, raw, len(digits))
	}
	return "+" + digits, nil
}

// Equal reports whether a and b normalize to the same number.
func (n *Normalizer) Equal(a, b string) bool {
	na, err := n.Normalize(a)
	if err != nil {
		return false
	}
	nb, err := n.Normalize(b)
	return err == nil && na == nb
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
