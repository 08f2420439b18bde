package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// DateLayout and TimeLayout are the wire formats for calendar dates and
// slot times. Dates are civil dates, deliberately not time.Time instants,
// so slot arithmetic never crosses timezone boundaries.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Appointment is a row in the clinic calendar. Cancel is a soft delete:
// the row keeps its slot history but stops occupying the grid.
type Appointment struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	DentistID          *uuid.UUID `json:"dentist_id,omitempty"`
	ServiceID          *uuid.UUID `json:"service_id,omitempty"`
	Date               string     `json:"date"`
	Time               string     `json:"time"`
	DurationMinutes    int        `json:"duration_minutes"`
	Status             Status     `json:"status"`
	HasBeenRescheduled bool       `json:"has_been_rescheduled"`
	RescheduleCount    int        `json:"reschedule_count"`
	HasBeenCancelled   bool       `json:"has_been_cancelled"`
	CancelCount        int        `json:"cancel_count"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Active reports whether the appointment still occupies calendar capacity.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

var (
	// ErrNotFound covers both a missing appointment and one owned by a
	// different patient, so callers cannot probe other patients' calendars.
	ErrNotFound = errors.New("scheduling: appointment not found")

	// ErrAlreadyCancelled is returned when cancelling a cancelled appointment.
	ErrAlreadyCancelled = errors.New("scheduling: appointment already cancelled")
)

// ValidationError reports malformed or out-of-range user input. It is a
// recoverable outcome: the dialogue layer turns it into a clarification.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scheduling: invalid %s: %s", e.Field, e.Reason)
}

// DuplicateConflictError reports that an equivalent active appointment
// already exists for the same patient, service and date.
type DuplicateConflictError struct {
	Existing Appointment
}

func (e *DuplicateConflictError) Error() string {
	return fmt.Sprintf("scheduling: active appointment already exists on %s at %s",
		e.Existing.Date, e.Existing.Time)
}

// SlotUnavailableError reports that the requested time is taken. Slots
// carries the currently free slots as remediation data for the caller.
type SlotUnavailableError struct {
	Date      string
	Requested string
	Slots     []string
}

func (e *SlotUnavailableError) Error() string {
	if len(e.Slots) == 0 {
		return fmt.Sprintf("scheduling: %s on %s is not available and no other slots remain", e.Requested, e.Date)
	}
	return fmt.Sprintf("scheduling: %s on %s is not available, free slots: %s",
		e.Requested, e.Date, strings.Join(e.Slots, ", "))
}

// ParseDate validates a civil date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a valid date", s)}
	}
	return t, nil
}

// ParseSlotTime validates an HH:MM slot time string.
func ParseSlotTime(s string) (int, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, &ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not a valid time", s)}
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minutesToSlot(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
