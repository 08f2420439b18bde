package conversation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMergeOverwritesOnlyExtractedFields(t *testing.T) {
	svcID := uuid.New()
	state := &ConversationState{
		PendingAction: ActionBook,
		CollectedInfo: CollectedInfo{Date: "2026-09-07", Time: "09:00"},
	}

	state.Merge(Entities{Time: "10:30", ServiceID: &svcID})

	assert.Equal(t, "2026-09-07", state.CollectedInfo.Date)
	assert.Equal(t, "10:30", state.CollectedInfo.Time)
	assert.Equal(t, &svcID, state.CollectedInfo.ServiceID)
	assert.Empty(t, state.MissingInfo)
	assert.True(t, state.Complete())
}

func TestMergeNewDateInvalidatesOfferedSlots(t *testing.T) {
	state := &ConversationState{
		PendingAction:  ActionBook,
		CollectedInfo:  CollectedInfo{Date: "2026-09-07"},
		AvailableSlots: []string{"09:00", "09:30"},
	}

	state.Merge(Entities{Date: "2026-09-08"})

	assert.Nil(t, state.AvailableSlots)
	assert.Equal(t, []string{"time"}, state.MissingInfo)
}

func TestRecomputeMissingPerAction(t *testing.T) {
	apptID := uuid.New()

	book := &ConversationState{PendingAction: ActionBook}
	book.RecomputeMissing()
	assert.Equal(t, []string{"date", "time"}, book.MissingInfo)

	cancel := &ConversationState{PendingAction: ActionCancel}
	cancel.RecomputeMissing()
	assert.Equal(t, []string{"appointmentId"}, cancel.MissingInfo)

	cancel.CollectedInfo.AppointmentID = &apptID
	cancel.RecomputeMissing()
	assert.Empty(t, cancel.MissingInfo)
	assert.True(t, cancel.Complete())

	resched := &ConversationState{PendingAction: ActionReschedule}
	resched.RecomputeMissing()
	assert.Equal(t, []string{"appointmentId", "date", "time"}, resched.MissingInfo)
}
