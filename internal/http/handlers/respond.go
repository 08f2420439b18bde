package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/smiledesk/patient-portal/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeSchedulingError maps booking-core failures onto HTTP statuses,
// carrying remediation data where the error provides it.
func writeSchedulingError(w http.ResponseWriter, err error) {
	var valErr *scheduling.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "validation_failed",
			"field":  valErr.Field,
			"detail": valErr.Reason,
		})
		return
	}

	var dupErr *scheduling.DuplicateConflictError
	if errors.As(err, &dupErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "duplicate_appointment",
			"existing": dupErr.Existing,
		})
		return
	}

	var slotErr *scheduling.SlotUnavailableError
	if errors.As(err, &slotErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":          "slot_unavailable",
			"date":           slotErr.Date,
			"requested":      slotErr.Requested,
			"availableSlots": slotErr.Slots,
		})
		return
	}

	switch {
	case errors.Is(err, scheduling.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, scheduling.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "appointment already cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
