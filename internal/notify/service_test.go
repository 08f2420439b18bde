package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smiledesk/patient-portal/internal/scheduling"
)

type recordingEmailSender struct {
	sent []EmailMessage
	err  error
}

func (s *recordingEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type recordingSMSSender struct {
	sent []SMSMessage
	err  error
}

func (s *recordingSMSSender) Send(_ context.Context, msg SMSMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type staticPrefs struct {
	prefs Preferences
	err   error
}

func (s *staticPrefs) GetPreferences(_ context.Context, _ uuid.UUID) (Preferences, error) {
	return s.prefs, s.err
}

func bothChannels() Preferences {
	return Preferences{
		Name:         "Ana Lopez",
		Email:        "ana@example.com",
		Phone:        "+15550100",
		EmailEnabled: true,
		SMSEnabled:   true,
	}
}

func TestNotifyWaitlistOpeningSendsOnEveryEnabledChannel(t *testing.T) {
	email := &recordingEmailSender{}
	sms := &recordingSMSSender{}
	svc := NewService(email, sms, &staticPrefs{prefs: bothChannels()}, "SmileDesk Dental", nil)

	err := svc.NotifyWaitlistOpening(context.Background(), uuid.New(), "2026-09-07", []string{"10:00", "10:30"})
	require.NoError(t, err)

	require.Len(t, email.sent, 1)
	assert.Contains(t, email.sent[0].Subject, "2026-09-07")
	assert.Contains(t, email.sent[0].Body, "10:00")
	assert.Equal(t, "ana@example.com", email.sent[0].To)

	require.Len(t, sms.sent, 1)
	assert.Contains(t, sms.sent[0].Body, "2026-09-07")
	assert.Equal(t, "+15550100", sms.sent[0].To)
}

func TestNotifySucceedsWhenOneChannelFails(t *testing.T) {
	email := &recordingEmailSender{err: errors.New("bounce")}
	sms := &recordingSMSSender{}
	svc := NewService(email, sms, &staticPrefs{prefs: bothChannels()}, "", nil)

	err := svc.NotifyWaitlistOpening(context.Background(), uuid.New(), "2026-09-07", []string{"10:00"})
	require.NoError(t, err, "one delivered channel is a success")
	assert.Len(t, sms.sent, 1)
}

func TestNotifyFailsWhenAllChannelsFail(t *testing.T) {
	email := &recordingEmailSender{err: errors.New("bounce")}
	sms := &recordingSMSSender{err: errors.New("carrier down")}
	svc := NewService(email, sms, &staticPrefs{prefs: bothChannels()}, "", nil)

	err := svc.NotifyWaitlistOpening(context.Background(), uuid.New(), "2026-09-07", []string{"10:00"})
	assert.ErrorContains(t, err, "all channels failed")
}

func TestNotifyNoChannelsEnabled(t *testing.T) {
	prefs := Preferences{Name: "Ana", Email: "ana@example.com"}
	svc := NewService(&recordingEmailSender{}, &recordingSMSSender{}, &staticPrefs{prefs: prefs}, "", nil)

	err := svc.NotifyWaitlistOpening(context.Background(), uuid.New(), "2026-09-07", []string{"10:00"})
	assert.ErrorIs(t, err, ErrNoChannels)
}

func TestNotifyBookingConfirmed(t *testing.T) {
	email := &recordingEmailSender{}
	prefs := Preferences{Name: "Ana", Email: "ana@example.com", EmailEnabled: true}
	svc := NewService(email, nil, &staticPrefs{prefs: prefs}, "", nil)

	appt := &scheduling.Appointment{Date: "2026-09-07", Time: "10:00"}
	require.NoError(t, svc.NotifyBookingConfirmed(context.Background(), uuid.New(), appt))
	require.Len(t, email.sent, 1)
	assert.Contains(t, email.sent[0].Body, "2026-09-07 at 10:00")
}

func TestNotifySMSOnlyTrimsSlotList(t *testing.T) {
	sms := &recordingSMSSender{}
	prefs := Preferences{Name: "Ana", Phone: "+15550100", SMSEnabled: true}
	svc := NewService(nil, sms, &staticPrefs{prefs: prefs}, "", nil)

	slots := []string{"09:00", "09:30", "10:00", "10:30", "11:00"}
	require.NoError(t, svc.NotifyWaitlistOpening(context.Background(), uuid.New(), "2026-09-07", slots))
	require.Len(t, sms.sent, 1)
	assert.NotContains(t, sms.sent[0].Body, "10:30")
	assert.Contains(t, sms.sent[0].Body, "10:00")
}
