package conversation

import (
	"regexp"
	"strconv"
	"strings"
)

// Slot shorthand resolution. When the assistant has just offered a list
// of open times, replies like "the second one" or "slot 3" are resolved
// against that stored list locally, never by the oracle.

var (
	slotIndexRe = regexp.MustCompile(`\b(?:slot|option|opcion|numero)\s*#?\s*(\d{1,2})\b`)
	bareIndexRe = regexp.MustCompile(`^\s*#?\s*(\d{1,2})\s*\.?\s*$`)
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"1st": 1, "2nd": 2, "3rd": 3, "4th": 4, "5th": 5,
	"primero": 1, "primera": 1, "segundo": 2, "segunda": 2,
	"tercero": 3, "tercera": 3, "cuarto": 4, "cuarta": 4,
	"quinto": 5, "quinta": 5,
	"last": -1, "ultimo": -1, "ultima": -1,
}

// ResolveSlotReference maps a user utterance onto one of the offered
// slots. Offered slots are 1-indexed in replies shown to the patient.
func ResolveSlotReference(text string, offered []string) (string, bool) {
	if len(offered) == 0 {
		return "", false
	}
	norm := normalizeText(text)

	pick := func(n int) (string, bool) {
		if n == -1 {
			return offered[len(offered)-1], true
		}
		if n < 1 || n > len(offered) {
			return "", false
		}
		return offered[n-1], true
	}

	// An explicit time in the message wins over positional shorthand
	// when it matches one of the offered slots exactly.
	if t, ok := ParseTimeExpression(text); ok {
		for _, slot := range offered {
			if slot == t {
				return slot, true
			}
		}
	}

	if m := slotIndexRe.FindStringSubmatch(norm); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return pick(n)
		}
	}

	for _, word := range strings.Fields(norm) {
		word = strings.Trim(word, ".,!?")
		if n, ok := ordinalWords[word]; ok {
			return pick(n)
		}
	}

	if m := bareIndexRe.FindStringSubmatch(norm); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return pick(n)
		}
	}

	return "", false
}
