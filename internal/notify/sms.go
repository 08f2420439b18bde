package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smiledesk/patient-portal/pkg/logging"
)

// SMSMessage represents a text message to be sent.
type SMSMessage struct {
	To   string
	Body string
}

// SMSSender defines the interface for sending SMS messages.
type SMSSender interface {
	Send(ctx context.Context, msg SMSMessage) error
}

const telnyxMessagesURL = "https://api.telnyx.com/v2/messages"

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	fromNumber         string
	messagingProfileID string
	baseURL            string
	httpClient         *http.Client
	logger             *logging.Logger
}

// NewTelnyxSender builds a sender for Telnyx V2 API. Returns nil when no
// API key is configured.
func NewTelnyxSender(apiKey, fromNumber, messagingProfileID string, logger *logging.Logger) *TelnyxSender {
	if apiKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		fromNumber:         fromNumber,
		messagingProfileID: messagingProfileID,
		baseURL:            telnyxMessagesURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL overrides the API endpoint. Used in tests.
func (s *TelnyxSender) WithBaseURL(url string) *TelnyxSender {
	if url != "" {
		s.baseURL = url
	}
	return s
}

// Send dispatches a single SMS via Telnyx V2 API.
func (s *TelnyxSender) Send(ctx context.Context, msg SMSMessage) error {
	if msg.To == "" {
		return errors.New("notify: sms recipient required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return errors.New("notify: sms body required")
	}

	payload := map[string]any{
		"from": s.fromNumber,
		"to":   msg.To,
		"text": msg.Body,
	}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: failed to marshal telnyx payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("notify: failed to build telnyx request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("telnyx send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: telnyx send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		s.logger.Error("telnyx returned error status", "status", resp.StatusCode, "body", string(respBody), "to", msg.To)
		return fmt.Errorf("notify: telnyx returned status %d", resp.StatusCode)
	}

	s.logger.Info("sms sent via telnyx", "to", msg.To, "status", resp.StatusCode)
	return nil
}

var _ SMSSender = (*TelnyxSender)(nil)

// StubSMSSender is a no-op sender for development or when SMS is disabled.
type StubSMSSender struct {
	logger *logging.Logger
}

// NewStubSMSSender creates a stub SMS sender that logs but doesn't send.
func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

// Send logs the SMS but doesn't actually send it.
func (s *StubSMSSender) Send(ctx context.Context, msg SMSMessage) error {
	s.logger.Info("stub sms sender: would send sms", "to", msg.To)
	return nil
}
