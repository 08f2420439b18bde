package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/smiledesk/patient-portal/internal/clinic"
	"github.com/smiledesk/patient-portal/internal/observability/metrics"
	"github.com/smiledesk/patient-portal/pkg/logging"
)

var schedulingTracer = otel.Tracer("portal.internal.scheduling")

// TxBeginner opens pgx transactions. Satisfied by pgxpool.Pool and pgxmock.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service is the booking transaction core. Every mutation runs inside one
// transaction that first acquires the coarse day/dentist lock, so two
// concurrent operations against the same calendar window are totally
// ordered and the loser sees the winner's committed rows.
type Service struct {
	db              TxBeginner
	repo            *PgRepository
	engine          *Engine
	catalog         clinic.Catalog
	logger          *logging.Logger
	metrics         *metrics.SchedulingMetrics
	defaultDuration int
	loc             *time.Location
	now             func() time.Time
}

// NewService constructs the booking core.
func NewService(db TxBeginner, repo *PgRepository, engine *Engine, catalog clinic.Catalog, logger *logging.Logger) *Service {
	if db == nil {
		panic("scheduling: tx beginner required")
	}
	if repo == nil {
		panic("scheduling: repository required")
	}
	if engine == nil {
		panic("scheduling: availability engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		db:              db,
		repo:            repo,
		engine:          engine,
		catalog:         catalog,
		logger:          logger,
		defaultDuration: 30,
		loc:             time.UTC,
		now:             time.Now,
	}
}

// WithDefaultDuration sets the appointment duration used when no service is given.
func (s *Service) WithDefaultDuration(minutes int) *Service {
	if minutes > 0 {
		s.defaultDuration = minutes
	}
	return s
}

// WithMetrics attaches prometheus counters.
func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

// WithLocation sets the clinic timezone used for past-date validation.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// WithNow overrides the wall clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Engine exposes the availability engine backing this service.
func (s *Service) Engine() *Engine {
	return s.engine
}

// BookRequest carries the inputs for a booking.
type BookRequest struct {
	PatientID uuid.UUID
	Date      string
	Time      string
	ServiceID *uuid.UUID
	DentistID *uuid.UUID
	Notes     string
}

// Book creates a scheduled appointment, failing with DuplicateConflictError
// when the patient already holds an equivalent active appointment and with
// SlotUnavailableError (carrying the current free slots) when the time is taken.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.patient_id", req.PatientID.String()),
		attribute.String("portal.date", req.Date),
		attribute.String("portal.time", req.Time),
	)

	appt, err := s.book(ctx, req)
	s.observe("book", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"patient_id", req.PatientID,
		"date", req.Date,
		"time", req.Time,
	)
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := s.validateFuture(req.Date); err != nil {
		return nil, err
	}
	if _, err := ParseSlotTime(req.Time); err != nil {
		return nil, err
	}

	duration := s.defaultDuration
	if req.ServiceID != nil {
		if s.catalog == nil {
			return nil, &ValidationError{Field: "service", Reason: "no service catalog configured"}
		}
		svc, err := s.catalog.GetService(ctx, *req.ServiceID)
		if err != nil {
			if errors.Is(err, clinic.ErrServiceNotFound) {
				return nil, &ValidationError{Field: "service", Reason: "unknown service"}
			}
			return nil, fmt.Errorf("scheduling: resolve service: %w", err)
		}
		if svc.DurationMinutes > 0 {
			duration = svc.DurationMinutes
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin book tx: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.repo.LockDay(ctx, tx, req.Date, req.DentistID)
	if err != nil {
		return nil, err
	}

	dup, err := s.repo.FindActiveDuplicate(ctx, tx, req.PatientID, req.ServiceID, req.Date, nil)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, &DuplicateConflictError{Existing: *dup}
	}

	free, err := s.engine.FreeSlots(req.Date, locked)
	if err != nil {
		return nil, err
	}
	covered, err := s.engine.SlotSpan(req.Time, duration)
	if err != nil {
		return nil, err
	}
	for _, slot := range covered {
		if !containsSlot(free.Slots, slot) {
			return nil, &SlotUnavailableError{Date: req.Date, Requested: req.Time, Slots: free.Slots}
		}
	}

	now := s.now().UTC()
	appt := &Appointment{
		ID:              uuid.New(),
		PatientID:       req.PatientID,
		DentistID:       req.DentistID,
		ServiceID:       req.ServiceID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: duration,
		Status:          StatusScheduled,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, tx, appt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("scheduling: commit book tx: %w", err)
	}
	return appt, nil
}

// Cancel soft-deletes an appointment owned by the patient. A second cancel
// on the same appointment fails with ErrAlreadyCancelled and never bumps
// the cancel counter twice.
func (s *Service) Cancel(ctx context.Context, patientID, appointmentID uuid.UUID, reason string) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("portal.appointment_id", appointmentID.String()))

	appt, err := s.cancel(ctx, patientID, appointmentID, reason)
	s.observe("cancel", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment cancelled",
		"appointment_id", appointmentID,
		"patient_id", patientID,
	)
	return appt, nil
}

func (s *Service) cancel(ctx context.Context, patientID, appointmentID uuid.UUID, reason string) (*Appointment, error) {
	// Peek without locks to learn the day, so the day lock is always
	// acquired before any row lock. Same ordering as Book and Reschedule.
	peek, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if peek.PatientID != patientID {
		return nil, ErrNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.repo.LockDay(ctx, tx, peek.Date, peek.DentistID); err != nil {
		return nil, err
	}

	appt, err := s.repo.GetForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotFound
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	notes := appt.Notes
	if reason != "" {
		if notes != "" {
			notes += "\n"
		}
		notes += "Cancelled: " + reason
	}
	if err := s.repo.MarkCancelled(ctx, tx, appointmentID, notes); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("scheduling: commit cancel tx: %w", err)
	}

	appt.Status = StatusCancelled
	appt.HasBeenCancelled = true
	appt.CancelCount++
	appt.Notes = notes
	return appt, nil
}

// Reschedule moves an appointment to a new date/time in place. It never
// creates a second row; the old slot frees implicitly when the row moves.
func (s *Service) Reschedule(ctx context.Context, patientID, appointmentID uuid.UUID, newDate, newTime string) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.appointment_id", appointmentID.String()),
		attribute.String("portal.new_date", newDate),
		attribute.String("portal.new_time", newTime),
	)

	appt, err := s.reschedule(ctx, patientID, appointmentID, newDate, newTime)
	s.observe("reschedule", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment rescheduled",
		"appointment_id", appointmentID,
		"patient_id", patientID,
		"new_date", newDate,
		"new_time", newTime,
	)
	return appt, nil
}

func (s *Service) reschedule(ctx context.Context, patientID, appointmentID uuid.UUID, newDate, newTime string) (*Appointment, error) {
	if err := s.validateFuture(newDate); err != nil {
		return nil, err
	}
	if _, err := ParseSlotTime(newTime); err != nil {
		return nil, err
	}

	// Peek without locks to learn the source day; day locks always come
	// before row locks.
	peek, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if peek.PatientID != patientID {
		return nil, ErrNotFound
	}
	if peek.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduling: begin reschedule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the source and target windows in key order so two reschedules
	// crossing the same pair of days cannot deadlock.
	locked, err := s.lockDaysOrdered(ctx, tx, peek.Date, newDate, peek.DentistID)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.GetForUpdate(ctx, tx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotFound
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	dup, err := s.repo.FindActiveDuplicate(ctx, tx, patientID, appt.ServiceID, newDate, &appointmentID)
	if err != nil {
		return nil, err
	}
	if dup != nil {
		return nil, &DuplicateConflictError{Existing: *dup}
	}

	// The moved appointment does not occupy its own target day: its old
	// slot frees as part of the same transaction.
	others := locked[:0:0]
	for _, a := range locked {
		if a.ID != appointmentID {
			others = append(others, a)
		}
	}
	free, err := s.engine.FreeSlots(newDate, others)
	if err != nil {
		return nil, err
	}
	covered, err := s.engine.SlotSpan(newTime, appt.DurationMinutes)
	if err != nil {
		return nil, err
	}
	for _, slot := range covered {
		if !containsSlot(free.Slots, slot) {
			return nil, &SlotUnavailableError{Date: newDate, Requested: newTime, Slots: free.Slots}
		}
	}

	if err := s.repo.UpdateSchedule(ctx, tx, appointmentID, newDate, newTime); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("scheduling: commit reschedule tx: %w", err)
	}

	appt.Date = newDate
	appt.Time = newTime
	appt.HasBeenRescheduled = true
	appt.RescheduleCount++
	return appt, nil
}

// History returns a patient's appointments, read-only and lock-free.
func (s *Service) History(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// lockDaysOrdered acquires the day locks for oldDate and newDate, smallest
// key first, and returns the locked rows of newDate.
func (s *Service) lockDaysOrdered(ctx context.Context, tx pgx.Tx, oldDate, newDate string, dentistID *uuid.UUID) ([]Appointment, error) {
	if oldDate == newDate {
		return s.repo.LockDay(ctx, tx, newDate, dentistID)
	}

	first, second := oldDate, newDate
	if second < first {
		first, second = second, first
	}

	var target []Appointment
	for _, date := range []string{first, second} {
		locked, err := s.repo.LockDay(ctx, tx, date, dentistID)
		if err != nil {
			return nil, err
		}
		if date == newDate {
			target = locked
		}
	}
	return target, nil
}

// validateFuture rejects dates strictly before today in the clinic timezone.
func (s *Service) validateFuture(date string) error {
	day, err := ParseDate(date)
	if err != nil {
		return err
	}
	today := s.now().In(s.loc).Format(DateLayout)
	if day.Format(DateLayout) < today {
		return &ValidationError{Field: "date", Reason: fmt.Sprintf("%s is in the past", date)}
	}
	return nil
}

func (s *Service) observe(operation string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyCancelled):
		outcome = "already_cancelled"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		var vErr *ValidationError
		var dupErr *DuplicateConflictError
		var slotErr *SlotUnavailableError
		switch {
		case errors.As(err, &vErr):
			outcome = "validation_error"
		case errors.As(err, &dupErr):
			outcome = "duplicate_conflict"
		case errors.As(err, &slotErr):
			outcome = "slot_unavailable"
		default:
			outcome = "error"
		}
	}
	s.metrics.ObserveOperation(operation, outcome)
}

func containsSlot(slots []string, t string) bool {
	for _, s := range slots {
		if s == t {
			return true
		}
	}
	return false
}
