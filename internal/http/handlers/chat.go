package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/smiledesk/patient-portal/internal/conversation"
	"github.com/smiledesk/patient-portal/internal/scheduling"
	"github.com/smiledesk/patient-portal/pkg/logging"
)

// ChatHandler exposes the dialogue driver over HTTP.
type ChatHandler struct {
	driver *conversation.Driver
	logger *logging.Logger
}

func NewChatHandler(driver *conversation.Driver, logger *logging.Logger) *ChatHandler {
	if driver == nil {
		panic("handlers: chat handler requires a driver")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{driver: driver, logger: logger}
}

type chatRequest struct {
	ConversationID uuid.UUID `json:"conversationId"`
	PatientID      uuid.UUID `json:"patientId"`
	Message        string    `json:"message"`
	Language       string    `json:"language,omitempty"`
}

type chatResponse struct {
	ConversationID uuid.UUID               `json:"conversationId"`
	Reply          string                  `json:"reply"`
	MissingInfo    []string                `json:"missingInfo,omitempty"`
	AvailableSlots []string                `json:"availableSlots,omitempty"`
	Appointment    *scheduling.Appointment `json:"appointment,omitempty"`
}

// HandleTurn processes one chat message and returns the assistant reply.
func (h *ChatHandler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ConversationID == uuid.Nil {
		req.ConversationID = uuid.New()
	}

	turn, err := h.driver.HandleTurn(r.Context(), conversation.TurnRequest{
		ConversationID: req.ConversationID,
		PatientID:      req.PatientID,
		Message:        req.Message,
		Language:       req.Language,
	})
	if err != nil {
		h.logger.Error("chat turn failed", "conversation_id", req.ConversationID.String(), "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := chatResponse{
		ConversationID: req.ConversationID,
		Reply:          turn.Reply,
		Appointment:    turn.Appointment,
	}
	if turn.State != nil {
		resp.MissingInfo = turn.State.MissingInfo
		resp.AvailableSlots = turn.State.AvailableSlots
	}
	writeJSON(w, http.StatusOK, resp)
}
