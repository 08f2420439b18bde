package conversation

import "github.com/google/uuid"

// Action is the multi-turn flow the patient is in the middle of.
type Action string

const (
	ActionBook       Action = "book"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
)

// CollectedInfo is the entity set accumulated across turns.
type CollectedInfo struct {
	ServiceID     *uuid.UUID `json:"serviceId,omitempty"`
	DentistID     *uuid.UUID `json:"dentistId,omitempty"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
	Date          string     `json:"date,omitempty"`
	Time          string     `json:"time,omitempty"`
}

// ConversationState is the only cross-turn memory the dialogue driver
// keeps. It is persisted per conversation and cleared on terminal
// success or abandonment.
type ConversationState struct {
	PendingAction  Action        `json:"pendingAction,omitempty"`
	CollectedInfo  CollectedInfo `json:"collectedInfo"`
	MissingInfo    []string      `json:"missingInfo,omitempty"`
	AvailableSlots []string      `json:"availableSlots,omitempty"`
}

// Merge overwrites each collected field with this turn's extraction when
// present and keeps the stored value otherwise, then recomputes the
// missing-field set.
func (s *ConversationState) Merge(e Entities) {
	if e.ServiceID != nil {
		s.CollectedInfo.ServiceID = e.ServiceID
	}
	if e.DentistID != nil {
		s.CollectedInfo.DentistID = e.DentistID
	}
	if e.AppointmentID != nil {
		s.CollectedInfo.AppointmentID = e.AppointmentID
	}
	if e.Date != "" {
		s.CollectedInfo.Date = e.Date
		// A new date invalidates slots offered for the old one.
		s.AvailableSlots = nil
	}
	if e.Time != "" {
		s.CollectedInfo.Time = e.Time
	}
	s.RecomputeMissing()
}

// RecomputeMissing rebuilds MissingInfo from the current action's
// required fields. Date and time are required for book and reschedule;
// cancel requires only the target appointment.
func (s *ConversationState) RecomputeMissing() {
	missing := make([]string, 0, 2)
	switch s.PendingAction {
	case ActionCancel:
		if s.CollectedInfo.AppointmentID == nil {
			missing = append(missing, "appointmentId")
		}
	case ActionReschedule:
		if s.CollectedInfo.AppointmentID == nil {
			missing = append(missing, "appointmentId")
		}
		fallthrough
	default:
		if s.CollectedInfo.Date == "" {
			missing = append(missing, "date")
		}
		if s.CollectedInfo.Time == "" {
			missing = append(missing, "time")
		}
	}
	if len(missing) == 0 {
		missing = nil
	}
	s.MissingInfo = missing
}

// Complete reports whether the pending action has everything it needs.
func (s *ConversationState) Complete() bool {
	return s.PendingAction != "" && len(s.MissingInfo) == 0
}
