package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/smiledesk/patient-portal/internal/scheduling"
)

// Deterministic date and time extraction. This is both the fallback path
// when no LLM provider is reachable and the validator for anything the
// oracle claims to have extracted.

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"domingo":   time.Sunday,
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miercoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sabado":    time.Saturday,
}

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January, "enero": time.January,
	"february": time.February, "feb": time.February, "febrero": time.February,
	"march": time.March, "mar": time.March, "marzo": time.March,
	"april": time.April, "apr": time.April, "abril": time.April,
	"may": time.May, "mayo": time.May,
	"june": time.June, "jun": time.June, "junio": time.June,
	"july": time.July, "jul": time.July, "julio": time.July,
	"august": time.August, "aug": time.August, "agosto": time.August,
	"september": time.September, "sep": time.September, "sept": time.September, "septiembre": time.September,
	"october": time.October, "oct": time.October, "octubre": time.October,
	"november": time.November, "nov": time.November, "noviembre": time.November,
	"december": time.December, "dec": time.December, "diciembre": time.December,
}

var (
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	inDaysRe     = regexp.MustCompile(`\b(?:in|en)\s+(\d{1,2})\s+(?:days?|d[ií]as?)\b`)
	monthDayRe   = regexp.MustCompile(`\b([a-záéíóú]+)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayOfMonthRe = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:de\s+|of\s+)?([a-záéíóú]+)\b`)
	clockRe      = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?\b`)
)

func normalizeText(text string) string {
	lower := strings.ToLower(text)
	replacer := strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n")
	return replacer.Replace(lower)
}

// ParseDateExpression extracts a calendar date from free text. The result
// is in the canonical YYYY-MM-DD form; ok reports whether anything
// date-like was found. Relative expressions resolve against now in loc.
func ParseDateExpression(text string, now time.Time, loc *time.Location) (string, bool) {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	norm := normalizeText(text)

	if m := isoDateRe.FindStringSubmatch(norm); m != nil {
		candidate := m[0]
		if _, err := scheduling.ParseDate(candidate); err == nil {
			return candidate, true
		}
	}

	if strings.Contains(norm, "today") || strings.Contains(norm, "hoy") {
		return today.Format(scheduling.DateLayout), true
	}
	if strings.Contains(norm, "tomorrow") || strings.Contains(norm, "manana") {
		return today.AddDate(0, 0, 1).Format(scheduling.DateLayout), true
	}

	if m := inDaysRe.FindStringSubmatch(norm); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 0 {
			return today.AddDate(0, 0, n).Format(scheduling.DateLayout), true
		}
	}

	for name, wd := range weekdayNames {
		if !containsWord(norm, name) {
			continue
		}
		// "next monday" and a bare "monday" both mean the next
		// occurrence, never today.
		days := int(wd-today.Weekday()+7) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days).Format(scheduling.DateLayout), true
	}

	if d, ok := parseMonthDay(norm, today); ok {
		return d, true
	}

	return "", false
}

func parseMonthDay(norm string, today time.Time) (string, bool) {
	tryBuild := func(monthWord string, dayDigits string) (string, bool) {
		month, ok := monthNames[monthWord]
		if !ok {
			return "", false
		}
		day, err := strconv.Atoi(dayDigits)
		if err != nil || day < 1 || day > 31 {
			return "", false
		}
		year := today.Year()
		candidate := time.Date(year, month, day, 0, 0, 0, 0, today.Location())
		if candidate.Day() != day {
			return "", false
		}
		// A month/day with no year means the next occurrence.
		if candidate.Format(scheduling.DateLayout) < today.Format(scheduling.DateLayout) {
			candidate = candidate.AddDate(1, 0, 0)
		}
		return candidate.Format(scheduling.DateLayout), true
	}

	for _, m := range monthDayRe.FindAllStringSubmatch(norm, -1) {
		if d, ok := tryBuild(m[1], m[2]); ok {
			return d, true
		}
	}
	for _, m := range dayOfMonthRe.FindAllStringSubmatch(norm, -1) {
		if d, ok := tryBuild(m[2], m[1]); ok {
			return d, true
		}
	}
	return "", false
}

// ParseTimeExpression extracts a clock time from free text, returned in
// the canonical HH:MM form.
func ParseTimeExpression(text string) (string, bool) {
	norm := normalizeText(text)

	if strings.Contains(norm, "noon") || strings.Contains(norm, "mediodia") {
		return "12:00", true
	}
	if strings.Contains(norm, "midnight") || strings.Contains(norm, "medianoche") {
		return "00:00", true
	}

	for _, m := range clockRe.FindAllStringSubmatch(norm, -1) {
		hour, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		minute := 0
		if m[2] != "" {
			minute, err = strconv.Atoi(m[2])
			if err != nil || minute > 59 {
				continue
			}
		}
		meridiem := strings.ReplaceAll(m[3], ".", "")

		switch meridiem {
		case "am":
			if hour < 1 || hour > 12 {
				continue
			}
			if hour == 12 {
				hour = 0
			}
		case "pm":
			if hour < 1 || hour > 12 {
				continue
			}
			if hour != 12 {
				hour += 12
			}
		default:
			// Bare numbers are too ambiguous to treat as a time;
			// require a colon form like 14:30.
			if m[2] == "" {
				continue
			}
			if hour > 23 {
				continue
			}
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}
	return "", false
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isLetter(haystack[start-1])
		afterOK := end == len(haystack) || !isLetter(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
