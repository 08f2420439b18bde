package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/smiledesk/patient-portal/internal/scheduling"
	"github.com/smiledesk/patient-portal/internal/waitlist"
)

// WaitlistCreator is the repository surface the handler needs.
type WaitlistCreator interface {
	Create(ctx context.Context, e *waitlist.Entry) error
}

// WaitlistHandler accepts patient waitlist requests.
type WaitlistHandler struct {
	store WaitlistCreator
	now   func() time.Time
	loc   *time.Location
}

func NewWaitlistHandler(store WaitlistCreator) *WaitlistHandler {
	if store == nil {
		panic("handlers: waitlist handler requires a store")
	}
	return &WaitlistHandler{store: store, now: time.Now, loc: time.UTC}
}

func (h *WaitlistHandler) WithNow(now func() time.Time) *WaitlistHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *WaitlistHandler) WithLocation(loc *time.Location) *WaitlistHandler {
	if loc != nil {
		h.loc = loc
	}
	return h
}

type waitlistRequest struct {
	PatientID     uuid.UUID  `json:"patientId"`
	PreferredDate string     `json:"preferredDate"`
	PreferredTime string     `json:"preferredTime,omitempty"`
	ServiceID     *uuid.UUID `json:"serviceId,omitempty"`
	DentistID     *uuid.UUID `json:"dentistId,omitempty"`
	AutoBook      bool       `json:"autoBook"`
}

// Create registers a patient's standing request for an opening.
func (h *WaitlistHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req waitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	if _, err := scheduling.ParseDate(req.PreferredDate); err != nil {
		writeError(w, http.StatusBadRequest, "preferredDate must be YYYY-MM-DD")
		return
	}
	if req.PreferredDate < h.now().In(h.loc).Format(scheduling.DateLayout) {
		writeError(w, http.StatusBadRequest, "preferredDate must not be in the past")
		return
	}
	if req.PreferredTime != "" {
		if _, err := scheduling.ParseSlotTime(req.PreferredTime); err != nil {
			writeError(w, http.StatusBadRequest, "preferredTime must be HH:MM")
			return
		}
	}
	if req.AutoBook && req.PreferredTime == "" {
		writeError(w, http.StatusBadRequest, "autoBook requires a preferredTime")
		return
	}

	entry := &waitlist.Entry{
		PatientID:     req.PatientID,
		PreferredDate: req.PreferredDate,
		PreferredTime: req.PreferredTime,
		ServiceID:     req.ServiceID,
		DentistID:     req.DentistID,
		AutoBook:      req.AutoBook,
	}
	if err := h.store.Create(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
