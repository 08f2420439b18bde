package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/smiledesk/patient-portal/internal/conversation"
	"github.com/smiledesk/patient-portal/internal/scheduling"
)

// AppointmentsHandler serves read endpoints for the portal UI.
type AppointmentsHandler struct {
	scheduler    conversation.Scheduler
	availability conversation.AvailabilityProvider
}

func NewAppointmentsHandler(scheduler conversation.Scheduler, availability conversation.AvailabilityProvider) *AppointmentsHandler {
	if scheduler == nil {
		panic("handlers: appointments handler requires a scheduler")
	}
	if availability == nil {
		panic("handlers: appointments handler requires an availability provider")
	}
	return &AppointmentsHandler{scheduler: scheduler, availability: availability}
}

// List returns a patient's full appointment history.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patient id")
		return
	}

	appts, err := h.scheduler.History(r.Context(), patientID)
	if err != nil {
		writeSchedulingError(w, err)
		return
	}
	if appts == nil {
		appts = []scheduling.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

// Availability returns the open slots for a date, optionally scoped to
// one dentist.
func (h *AppointmentsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := scheduling.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	var dentistID *uuid.UUID
	if raw := r.URL.Query().Get("dentistId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid dentist id")
			return
		}
		dentistID = &id
	}

	avail, err := h.availability.ComputeSlots(r.Context(), date, dentistID)
	if err != nil {
		writeSchedulingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}
