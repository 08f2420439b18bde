package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSlotReference(t *testing.T) {
	offered := []string{"09:00", "09:30", "10:00", "10:30"}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"slot n", "slot 2 please", "09:30"},
		{"option n", "option 3", "10:00"},
		{"bare index", "2", "09:30"},
		{"bare index punctuated", "#4.", "10:30"},
		{"ordinal word", "the first one", "09:00"},
		{"ordinal word later", "I'll take the third", "10:00"},
		{"ordinal spanish", "la segunda por favor", "09:30"},
		{"last", "the last one", "10:30"},
		{"literal time", "10:00 works for me", "10:00"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveSlotReference(tc.text, offered)
			assert.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveSlotReferenceMisses(t *testing.T) {
	offered := []string{"09:00", "09:30"}

	for _, text := range []string{
		"slot 7",
		"the fifth one",
		"11:00 please",
		"none of those work",
	} {
		_, ok := ResolveSlotReference(text, offered)
		assert.False(t, ok, "expected no slot match for %q", text)
	}

	_, ok := ResolveSlotReference("slot 1", nil)
	assert.False(t, ok)
}
