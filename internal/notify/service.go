package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/smiledesk/patient-portal/internal/scheduling"
	"github.com/smiledesk/patient-portal/pkg/logging"
)

// ErrNoChannels is returned when neither email nor SMS can reach the
// patient. Callers decide what to do; the waitlist reconciler skips the
// entry and leaves it active.
var ErrNoChannels = errors.New("notify: no notification channels enabled")

// Service formats and fans out patient notifications. Failure of one
// channel never blocks the other; the send fails only when no enabled
// channel delivered.
type Service struct {
	email      EmailSender
	sms        SMSSender
	prefs      PreferenceStore
	clinicName string
	logger     *logging.Logger
}

func NewService(email EmailSender, sms SMSSender, prefs PreferenceStore, clinicName string, logger *logging.Logger) *Service {
	if prefs == nil {
		panic("notify: service requires a preference store")
	}
	if clinicName == "" {
		clinicName = "SmileDesk Dental"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		sms:        sms,
		prefs:      prefs,
		clinicName: clinicName,
		logger:     logger,
	}
}

// Preferences exposes the patient's channel opt-ins to callers that need
// to decide before acting, like the waitlist reconciler.
func (s *Service) Preferences(ctx context.Context, patientID uuid.UUID) (Preferences, error) {
	return s.prefs.GetPreferences(ctx, patientID)
}

// NotifyWaitlistOpening tells the patient a slot opened on their
// preferred date.
func (s *Service) NotifyWaitlistOpening(ctx context.Context, patientID uuid.UUID, date string, slots []string) error {
	prefs, err := s.prefs.GetPreferences(ctx, patientID)
	if err != nil {
		return err
	}

	shown := slots
	if len(shown) > 3 {
		shown = shown[:3]
	}
	subject := fmt.Sprintf("%s: an appointment opened up on %s", s.clinicName, date)
	body := fmt.Sprintf(
		"Good news! Time just opened up on %s. Open times: %s. Reply in the patient portal to grab one before it's taken.",
		date, strings.Join(shown, ", "),
	)
	sms := fmt.Sprintf("%s: a slot opened on %s (%s). Book via the patient portal.",
		s.clinicName, date, strings.Join(shown, ", "))

	return s.deliver(ctx, prefs, subject, body, sms)
}

// NotifyBookingConfirmed confirms a committed appointment, whether booked
// in chat or auto-booked off the waitlist.
func (s *Service) NotifyBookingConfirmed(ctx context.Context, patientID uuid.UUID, appt *scheduling.Appointment) error {
	prefs, err := s.prefs.GetPreferences(ctx, patientID)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s: appointment confirmed for %s", s.clinicName, appt.Date)
	body := fmt.Sprintf("Your appointment is confirmed for %s at %s. See you then! If you need to change it, just reply in the patient portal.",
		appt.Date, appt.Time)
	sms := fmt.Sprintf("%s: appointment confirmed for %s at %s.", s.clinicName, appt.Date, appt.Time)

	return s.deliver(ctx, prefs, subject, body, sms)
}

func (s *Service) deliver(ctx context.Context, prefs Preferences, subject, body, smsBody string) error {
	if !prefs.AnyEnabled() {
		return ErrNoChannels
	}

	var delivered int
	var errs []error

	if prefs.EmailEnabled && prefs.Email != "" && s.email != nil {
		err := s.email.Send(ctx, EmailMessage{
			To:      prefs.Email,
			ToName:  prefs.Name,
			Subject: subject,
			Body:    body,
		})
		if err != nil {
			s.logger.Error("email channel failed", "error", err.Error())
			errs = append(errs, err)
		} else {
			delivered++
		}
	}

	if prefs.SMSEnabled && prefs.Phone != "" && s.sms != nil {
		err := s.sms.Send(ctx, SMSMessage{To: prefs.Phone, Body: smsBody})
		if err != nil {
			s.logger.Error("sms channel failed", "error", err.Error())
			errs = append(errs, err)
		} else {
			delivered++
		}
	}

	if delivered == 0 {
		if len(errs) > 0 {
			return fmt.Errorf("notify: all channels failed: %w", errors.Join(errs...))
		}
		return ErrNoChannels
	}
	return nil
}
