package waitlist

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a waitlist entry. Both notified and
// converted are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusNotified  Status = "notified"
	StatusConverted Status = "converted"
)

// Entry is a patient's standing request to be told when capacity opens
// on their preferred date.
type Entry struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	PreferredDate string     `json:"preferred_date"`
	PreferredTime string     `json:"preferred_time,omitempty"`
	ServiceID     *uuid.UUID `json:"service_id,omitempty"`
	DentistID     *uuid.UUID `json:"dentist_id,omitempty"`
	Status        Status     `json:"status"`
	AutoBook      bool       `json:"auto_book"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
