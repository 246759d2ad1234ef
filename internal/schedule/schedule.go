// Package schedule parses free-text event schedules such as
// "Wednesday 20:00" into a weekday, a start time and a frequency.
//
// Parsing is pure and deterministic so that reconciling the same listing
// twice yields identical records.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/venuesync/internal/model"
)

var (
	// ErrNoWeekday is returned when the text does not lead with a weekday.
	ErrNoWeekday = errors.New("schedule: no leading weekday")
	// ErrNoTime is returned when the text contains no HH:MM time.
	ErrNoTime = errors.New("schedule: no HH:MM time")
)

// weekdays is ordered so that index+1 is the ISO day number.
var weekdays = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var (
	timePattern    = regexp.MustCompile(`(?:^|[^0-9])([01]?[0-9]|2[0-3]):([0-5][0-9])(?:[^0-9]|$)`)
	ordinalPattern = regexp.MustCompile(`(?i)\b(first|second|third|fourth|last)\b.*\bof (the|each|every) month\b`)
	monthlyPattern = regexp.MustCompile(`(?i)\bmonthly\b`)
	biweeklyWords  = []string{"every other", "bi-weekly", "biweekly", "fortnightly"}
)

// Schedule is a parsed recurring time slot.
type Schedule struct {
	DayOfWeek int
	StartTime string
	Frequency model.Frequency
}

// Override carries structured values a source supplied alongside its text.
// Zero fields are parsed from the text instead.
type Override struct {
	DayOfWeek int
	StartTime string
}

// ParseDay returns the ISO weekday (Monday=1 .. Sunday=7) named by the
// leading token of text. Matching is case-sensitive; plural and punctuated
// forms such as "Sundays," are accepted.
func ParseDay(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, ErrNoWeekday
	}
	lead := fields[0]
	for i, day := range weekdays {
		if strings.HasPrefix(lead, day) {
			rest := strings.TrimPrefix(lead, day)
			if rest == "" || strings.Trim(rest, "s,.:;-") == "" {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrNoWeekday, lead)
}

// ParseTime finds the first HH:MM time anywhere in text and returns it
// zero-padded.
func ParseTime(text string) (string, error) {
	m := timePattern.FindStringSubmatch(text)
	if m == nil {
		return "", ErrNoTime
	}
	return normalizeClock(m[1], m[2]), nil
}

// NormalizeTime validates an explicit start time and returns it as HH:MM.
func NormalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) == len("15:04:05") && s[5] == ':' {
		s = s[:5]
	}
	m := timePattern.FindStringSubmatch(s)
	if m == nil || len(m[0]) != len(s) {
		return "", fmt.Errorf("%w: %q", ErrNoTime, s)
	}
	return normalizeClock(m[1], m[2]), nil
}

func normalizeClock(hh, mm string) string {
	if len(hh) == 1 {
		hh = "0" + hh
	}
	return hh + ":" + mm
}

// ParseFrequency classifies text by keyword. Monthly phrases win over
// biweekly ones; anything else is weekly.
func ParseFrequency(text string) model.Frequency {
	if ordinalPattern.MatchString(text) || monthlyPattern.MatchString(text) {
		return model.FrequencyMonthly
	}
	lower := strings.ToLower(text)
	for _, w := range biweeklyWords {
		if strings.Contains(lower, w) {
			return model.FrequencyBiweekly
		}
	}
	return model.FrequencyWeekly
}

// Parse extracts a full schedule from text.
func Parse(text string) (Schedule, error) {
	return ParseWith(text, Override{})
}

// ParseWith is Parse with structured overrides. When an override is present
// the text is not consulted for that field, so text without a weekday or a
// time still succeeds if the caller provides them. Frequency always comes
// from the text.
func ParseWith(text string, o Override) (Schedule, error) {
	s := Schedule{Frequency: ParseFrequency(text)}

	if o.DayOfWeek != 0 {
		if o.DayOfWeek < 1 || o.DayOfWeek > 7 {
			return Schedule{}, fmt.Errorf("%w: day %d out of range", ErrNoWeekday, o.DayOfWeek)
		}
		s.DayOfWeek = o.DayOfWeek
	} else {
		day, err := ParseDay(text)
		if err != nil {
			return Schedule{}, err
		}
		s.DayOfWeek = day
	}

	if o.StartTime != "" {
		t, err := NormalizeTime(o.StartTime)
		if err != nil {
			return Schedule{}, err
		}
		s.StartTime = t
	} else {
		t, err := ParseTime(text)
		if err != nil {
			return Schedule{}, err
		}
		s.StartTime = t
	}

	return s, nil
}

// DayName returns the English name for an ISO weekday, or "" if out of range.
func DayName(day int) string {
	if day < 1 || day > 7 {
		return ""
	}
	return weekdays[day-1]
}
