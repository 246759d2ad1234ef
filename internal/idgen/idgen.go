// Package idgen provides short, URL-safe unique ID generation backed by nanoid,
// plus the slug helpers used for venues, countries and cities.
package idgen

import (
	"fmt"
	"strings"
	"unicode"

	nanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// JobPrefix is prepended to every generated job ID.
var JobPrefix = "job-"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// SuffixAlphabet is lowercase-only so suffixed slugs stay canonical.
const SuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// SuffixLength is the length of the collision suffix appended to slugs.
const SuffixLength = 6

// JobID returns a new unique job ID.
func JobID() (string, error) {
	return GenerateWithPrefix(JobPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// Slug lowercases s, folds accents to ASCII, and joins alphanumeric runs with
// single hyphens. "Café de Flore!" becomes "cafe-de-flore".
func Slug(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// SlugWithSuffix returns base followed by a random lowercase suffix, used when
// base is already taken.
func SlugWithSuffix(base string) (string, error) {
	suffix, err := nanoid.Generate(SuffixAlphabet, SuffixLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	if base == "" {
		return suffix, nil
	}
	return base + "-" + suffix, nil
}
