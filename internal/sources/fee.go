package sources

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	amountPattern = regexp.MustCompile(`(\d+)(?:[.,](\d{1,2}))?`)
	pencePattern  = regexp.MustCompile(`(?i)^\s*(\d+)\s*p\b`)
	freePattern   = regexp.MustCompile(`(?i)\b(free|no charge|no entry fee)\b`)
)

// ParseFee converts an entry fee such as "£2.50", "$3", "3 EUR" or "50p"
// into minor units. Free or unrecognized text yields nil.
func ParseFee(text string) *int {
	text = strings.TrimSpace(text)
	if text == "" || freePattern.MatchString(text) {
		return nil
	}
	if m := pencePattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		return &n
	}

	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	minor := 0
	if frac := m[2]; frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		if minor, err = strconv.Atoi(frac); err != nil {
			return nil
		}
	}
	cents := major*100 + minor
	if cents == 0 {
		return nil
	}
	return &cents
}

// feeFromNumber converts a numeric fee in major units to minor units.
func feeFromNumber(f float64) *int {
	if f <= 0 {
		return nil
	}
	cents := int(f*100 + 0.5)
	return &cents
}

// clean collapses runs of whitespace and trims the result.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
