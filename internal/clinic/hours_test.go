package clinic

import (
	"testing"
	"time"
)

func TestParseBusinessHoursEmptyUsesDefaults(t *testing.T) {
	hours, err := ParseBusinessHours("")
	if err != nil {
		t.Fatalf("ParseBusinessHours returned error: %v", err)
	}

	day, open := hours[time.Monday], true
	if _, ok := hours[time.Monday]; !ok {
		open = false
	}
	if !open || day.Open != "09:00" || day.Close != "17:00" {
		t.Errorf("expected Monday 09:00-17:00, got %+v (open=%v)", day, open)
	}
	if _, ok := hours[time.Sunday]; ok {
		t.Error("expected Sunday closed by default")
	}
}

func TestParseBusinessHoursOverride(t *testing.T) {
	raw := `{"monday":{"open":"08:00","close":"12:00"},"saturday":{"closed":true}}`
	hours, err := ParseBusinessHours(raw)
	if err != nil {
		t.Fatalf("ParseBusinessHours returned error: %v", err)
	}

	mon, ok := hours[time.Monday]
	if !ok || mon.Open != "08:00" || mon.Close != "12:00" {
		t.Errorf("expected Monday 08:00-12:00, got %+v", mon)
	}
	if _, ok := hours[time.Saturday]; ok {
		t.Error("expected Saturday closed")
	}
}

func TestParseBusinessHoursRejectsBadInput(t *testing.T) {
	cases := []string{
		`{"funday":{"open":"09:00","close":"17:00"}}`,
		`{"monday":{"open":"9am","close":"17:00"}}`,
		`{"monday":{"open":"17:00","close":"09:00"}}`,
		`not json`,
	}
	for _, raw := range cases {
		if _, err := ParseBusinessHours(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestForDate(t *testing.T) {
	hours := DefaultBusinessHours()

	// 2026-09-07 is a Monday, 2026-09-06 a Sunday.
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)

	if _, open := hours.ForDate(monday); !open {
		t.Error("expected Monday open")
	}
	if _, open := hours.ForDate(sunday); open {
		t.Error("expected Sunday closed")
	}
}
