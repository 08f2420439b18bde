package clinic

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DayHours describes the opening window for a single weekday.
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed,omitempty"`
}

// BusinessHours maps weekdays to opening windows. Days absent from the map
// are treated as closed.
type BusinessHours map[time.Weekday]DayHours

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// DefaultBusinessHours returns the standing clinic schedule used when no
// BUSINESS_HOURS_JSON override is configured.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		time.Monday:    {Open: "09:00", Close: "17:00"},
		time.Tuesday:   {Open: "09:00", Close: "17:00"},
		time.Wednesday: {Open: "09:00", Close: "17:00"},
		time.Thursday:  {Open: "09:00", Close: "17:00"},
		time.Friday:    {Open: "09:00", Close: "17:00"},
		time.Saturday:  {Open: "09:00", Close: "13:00"},
	}
}

// ParseBusinessHours decodes a JSON object keyed by lowercase weekday name,
// e.g. {"monday":{"open":"09:00","close":"17:00"},"sunday":{"closed":true}}.
// An empty input returns the default schedule.
func ParseBusinessHours(raw string) (BusinessHours, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultBusinessHours(), nil
	}

	var decoded map[string]DayHours
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("clinic: parse business hours: %w", err)
	}

	hours := make(BusinessHours, len(decoded))
	for name, day := range decoded {
		weekday, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("clinic: unknown weekday %q in business hours", name)
		}
		if day.Closed {
			continue
		}
		if _, err := time.Parse("15:04", day.Open); err != nil {
			return nil, fmt.Errorf("clinic: invalid open time %q for %s", day.Open, name)
		}
		if _, err := time.Parse("15:04", day.Close); err != nil {
			return nil, fmt.Errorf("clinic: invalid close time %q for %s", day.Close, name)
		}
		if day.Close <= day.Open {
			return nil, fmt.Errorf("clinic: close %q not after open %q for %s", day.Close, day.Open, name)
		}
		hours[weekday] = day
	}
	return hours, nil
}

// ForDate returns the opening window for the date's weekday.
// ok is false when the clinic is closed that day.
func (h BusinessHours) ForDate(date time.Time) (DayHours, bool) {
	day, ok := h[date.Weekday()]
	if !ok || day.Closed {
		return DayHours{}, false
	}
	return day, true
}
