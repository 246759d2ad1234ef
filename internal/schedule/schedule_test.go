package schedule

import (
	"errors"
	"testing"

	"github.com/alfredjeanlab/venuesync/internal/model"
)

func TestParseDay(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"Monday 19:30", 1, false},
		{"Tuesday", 2, false},
		{"Wednesday 20:00", 3, false},
		{"Thursdays at 8", 4, false},
		{"Friday, 21:00", 5, false},
		{"Saturday: brunch quiz 12:00", 6, false},
		{"Sundays, 7pm", 7, false},
		{"wednesday 20:00", 0, true},
		{"first Tuesday of the month", 0, true},
		{"Mondayish 20:00", 0, true},
		{"", 0, true},
		{"   ", 0, true},
	} {
		got, err := ParseDay(tc.input)
		if tc.wantErr {
			if !errors.Is(err, ErrNoWeekday) {
				t.Errorf("ParseDay(%q) err = %v, want ErrNoWeekday", tc.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDay(%q) unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDay(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestParseDay_AllWeekdays(t *testing.T) {
	for i, name := range weekdays {
		got, err := ParseDay(name + " 20:00")
		if err != nil {
			t.Fatalf("ParseDay(%q): %v", name, err)
		}
		if got != i+1 {
			t.Errorf("ParseDay(%q) = %d, want %d", name, got, i+1)
		}
		if DayName(got) != name {
			t.Errorf("DayName(%d) = %q, want %q", got, DayName(got), name)
		}
	}
}

func TestParseTime(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"Wednesday 20:00", "20:00", false},
		{"Quiz starts 7:30 sharp", "07:30", false},
		{"Doors 19:00, quiz 19:30", "19:00", false},
		{"Sundays, 7pm", "", true},
		{"Room 123:45", "", true},
		{"25:00", "", true},
	} {
		got, err := ParseTime(tc.input)
		if tc.wantErr {
			if !errors.Is(err, ErrNoTime) {
				t.Errorf("ParseTime(%q) err = %v, want ErrNoTime", tc.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTime(%q) unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTime(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeTime(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"20:00", "20:00", false},
		{"8:15", "08:15", false},
		{"19:30:00", "19:30", false},
		{"at 19:30", "", true},
		{"7pm", "", true},
	} {
		got, err := NormalizeTime(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("NormalizeTime(%q) err = %v, wantErr %v", tc.input, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeTime(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestParseFrequency(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  model.Frequency
	}{
		{"Wednesday 20:00", model.FrequencyWeekly},
		{"first Tuesday of the month", model.FrequencyMonthly},
		{"Last Friday of each month 20:00", model.FrequencyMonthly},
		{"Monthly quiz, Thursday 19:30", model.FrequencyMonthly},
		{"Every other Monday", model.FrequencyBiweekly},
		{"Bi-weekly on Sundays", model.FrequencyBiweekly},
		{"biweekly", model.FrequencyBiweekly},
		{"Fortnightly Tuesday quiz", model.FrequencyBiweekly},
		// Monthly takes precedence over biweekly.
		{"Every other month, first Monday of the month", model.FrequencyMonthly},
		{"Sundays, 7pm", model.FrequencyWeekly},
	} {
		if got := ParseFrequency(tc.input); got != tc.want {
			t.Errorf("ParseFrequency(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("Wednesday 20:00")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Schedule{DayOfWeek: 3, StartTime: "20:00", Frequency: model.FrequencyWeekly}
	if got != want {
		t.Errorf("Parse = %+v, want %+v", got, want)
	}

	if _, err := Parse("Sundays, 7pm"); !errors.Is(err, ErrNoTime) {
		t.Errorf("Parse without time err = %v, want ErrNoTime", err)
	}
}

func TestParseWith_Overrides(t *testing.T) {
	got, err := ParseWith("Sundays, 7pm", Override{StartTime: "19:00"})
	if err != nil {
		t.Fatalf("ParseWith: %v", err)
	}
	if got.DayOfWeek != 7 || got.StartTime != "19:00" {
		t.Errorf("ParseWith = %+v", got)
	}

	// Structured values win even when the text names another day.
	got, err = ParseWith("Monday 20:00 fortnightly", Override{DayOfWeek: 4, StartTime: "21:15"})
	if err != nil {
		t.Fatalf("ParseWith: %v", err)
	}
	want := Schedule{DayOfWeek: 4, StartTime: "21:15", Frequency: model.FrequencyBiweekly}
	if got != want {
		t.Errorf("ParseWith = %+v, want %+v", got, want)
	}

	if _, err := ParseWith("Monday 20:00", Override{DayOfWeek: 9}); !errors.Is(err, ErrNoWeekday) {
		t.Errorf("out-of-range day err = %v", err)
	}
	if _, err := ParseWith("Monday", Override{StartTime: "late"}); !errors.Is(err, ErrNoTime) {
		t.Errorf("bad override time err = %v", err)
	}
}

func TestParse_Deterministic(t *testing.T) {
	first, err := Parse("Thursday 19:45 every other week")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		again, err := Parse("Thursday 19:45 every other week")
		if err != nil || again != first {
			t.Fatalf("iteration %d: got %+v, %v; want %+v", i, again, err, first)
		}
	}
}
