// Package phone normalizes phone numbers so the same person dialled as
// "098765 43210", "+91 98765-43210" or "919876543210" maps to one key.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var ErrEmpty = errors.New("phone: number is empty")

// Normalizer formats numbers to E.164 using a default region for national input.
type Normalizer struct {
	region string
}

func NewNormalizer(defaultRegion string) Normalizer {
	r := strings.ToUpper(strings.TrimSpace(defaultRegion))
	if r == "" {
		r = "IN"
	}
	return Normalizer{region: r}
}

// Normalize returns the E.164 form of raw. Numbers that libphonenumber cannot
// parse or validate fall back to "+<digits>" (or bare digits) so imports never
// lose a row over formatting.
func (n Normalizer) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}
	parsed, err := phonenumbers.Parse(raw, n.region)
	if err == nil && phonenumbers.IsValidNumber(parsed) {
		return phonenumbers.Format(parsed, phonenumbers.E164), nil
	}
	d := Digits(raw)
	if d == "" {
		return "", ErrEmpty
	}
	if strings.HasPrefix(raw, "+") {
		return "+" + d, nil
	}
	return d, nil
}

// Candidates lists the stored forms a lookup should try for raw: the normalized
// value plus the trimmed input, deduplicated.
func (n Normalizer) Candidates(raw string) []string {
	raw = strings.TrimSpace(raw)
	out := make([]string, 0, 2)
	if norm, err := n.Normalize(raw); err == nil {
		out = append(out, norm)
	}
	if raw != "" && (len(out) == 0 || out[0] != raw) {
		out = append(out, raw)
	}
	return out
}

// Digits strips everything except 0-9.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LastDigits returns the trailing n digits of s (all of them if shorter).
func LastDigits(s string, n int) string {
	d := Digits(s)
	if len(d) <= n {
		return d
	}
	return d[len(d)-n:]
}
