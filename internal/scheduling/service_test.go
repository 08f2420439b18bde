package scheduling

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/smiledesk/patient-portal/internal/clinic"
)

var apptColumnNames = []string{
	"id", "patient_id", "dentist_id", "service_id", "date", "time",
	"duration_minutes", "status", "has_been_rescheduled", "reschedule_count",
	"has_been_cancelled", "cancel_count", "notes", "created_at", "updated_at",
}

func apptRow(appts ...Appointment) *pgxmock.Rows {
	rows := pgxmock.NewRows(apptColumnNames)
	for _, a := range appts {
		rows.AddRow(
			a.ID, a.PatientID, a.DentistID, a.ServiceID, a.Date, a.Time,
			a.DurationMinutes, a.Status, a.HasBeenRescheduled, a.RescheduleCount,
			a.HasBeenCancelled, a.CancelCount, a.Notes, a.CreatedAt, a.UpdatedAt,
		)
	}
	return rows
}

func emptyApptRows() *pgxmock.Rows {
	return pgxmock.NewRows(apptColumnNames)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newTestService(t *testing.T, catalog clinic.Catalog) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	repo := NewPgRepository(mock)
	engine := NewEngine(testHours(), repo).WithNow(fixedNow)
	svc := NewService(mock, repo, engine, catalog, nil).WithNow(fixedNow)
	return svc, mock
}

// expectDayLock matches the advisory lock plus the FOR UPDATE window read
// for one date with no dentist filter.
func expectDayLock(mock pgxmock.PgxPoolIface, date string, rows *pgxmock.Rows) {
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(date).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(date).
		WillReturnRows(rows)
}

func TestBookSucceedsOnEmptyDay(t *testing.T) {
	svc, mock := newTestService(t, nil)
	patientID := uuid.New()

	mock.ExpectBegin()
	expectDayLock(mock, testMonday, emptyApptRows())
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testMonday).
		WillReturnRows(emptyApptRows())
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	appt, err := svc.Book(context.Background(), BookRequest{
		PatientID: patientID,
		Date:      testMonday,
		Time:      "09:00",
	})
	if err != nil {
		t.Fatalf("Book returned error: %v", err)
	}
	if appt.Status != StatusScheduled {
		t.Errorf("expected status scheduled, got %s", appt.Status)
	}
	if appt.DurationMinutes != 30 {
		t.Errorf("expected default duration 30, got %d", appt.DurationMinutes)
	}
	if appt.ID == uuid.Nil {
		t.Error("expected generated appointment id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestBookReportsSlotUnavailableWithRemediation(t *testing.T) {
	svc, mock := newTestService(t, nil)
	patientID := uuid.New()

	existing := Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		Date:            testMonday,
		Time:            "09:00",
		DurationMinutes: 30,
		Status:          StatusScheduled,
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}

	mock.ExpectBegin()
	expectDayLock(mock, testMonday, apptRow(existing))
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testMonday).
		WillReturnRows(emptyApptRows())
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), BookRequest{
		PatientID: patientID,
		Date:      testMonday,
		Time:      "09:00",
	})

	var slotErr *SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError, got %v", err)
	}
	if containsSlot(slotErr.Slots, "09:00") {
		t.Error("remediation slots must exclude the occupied 09:00")
	}
	if !containsSlot(slotErr.Slots, "09:30") {
		t.Error("remediation slots should include 09:30")
	}
}

func TestBookReportsDuplicateConflict(t *testing.T) {
	patientID := uuid.New()
	serviceID := uuid.New()
	catalog := clinic.NewStaticCatalog([]clinic.Service{
		{ID: serviceID, Name: "Cleaning", DurationMinutes: 30},
	}, nil)
	svc, mock := newTestService(t, catalog)

	existing := Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		ServiceID:       &serviceID,
		Date:            testMonday,
		Time:            "11:00",
		DurationMinutes: 30,
		Status:          StatusScheduled,
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}

	mock.ExpectBegin()
	expectDayLock(mock, testMonday, apptRow(existing))
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testMonday, serviceID).
		WillReturnRows(apptRow(existing))
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), BookRequest{
		PatientID: patientID,
		ServiceID: &serviceID,
		Date:      testMonday,
		Time:      "10:00",
	})

	var dupErr *DuplicateConflictError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateConflictError, got %v", err)
	}
	if dupErr.Existing.ID != existing.ID {
		t.Error("conflict should reference the existing appointment")
	}
	if dupErr.Existing.Time != "11:00" {
		t.Errorf("conflict should carry the existing time, got %s", dupErr.Existing.Time)
	}
}

func TestBookRejectsPastDate(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Book(context.Background(), BookRequest{
		PatientID: uuid.New(),
		Date:      "2026-08-31",
		Time:      "09:00",
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for past date, got %v", err)
	}
}

func TestBookRejectsClosedDaySlot(t *testing.T) {
	svc, mock := newTestService(t, nil)
	patientID := uuid.New()

	mock.ExpectBegin()
	expectDayLock(mock, testSunday, emptyApptRows())
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testSunday).
		WillReturnRows(emptyApptRows())
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), BookRequest{
		PatientID: patientID,
		Date:      testSunday,
		Time:      "09:00",
	})

	var slotErr *SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError on closed day, got %v", err)
	}
	if len(slotErr.Slots) != 0 {
		t.Errorf("closed day should offer no remediation slots, got %v", slotErr.Slots)
	}
}

func TestBookRejectsOverlapWithLaterAppointment(t *testing.T) {
	patientID := uuid.New()
	rootCanalID := uuid.New()
	catalog := clinic.NewStaticCatalog([]clinic.Service{
		{ID: rootCanalID, Name: "Root Canal", DurationMinutes: 60},
	}, nil)
	svc, mock := newTestService(t, catalog)

	// 09:30 is taken, so a 60-minute booking at 09:00 cannot fit even
	// though the 09:00 slot itself is free.
	existing := Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		Date:            testMonday,
		Time:            "09:30",
		DurationMinutes: 30,
		Status:          StatusScheduled,
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}

	mock.ExpectBegin()
	expectDayLock(mock, testMonday, apptRow(existing))
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testMonday, rootCanalID).
		WillReturnRows(emptyApptRows())
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), BookRequest{
		PatientID: patientID,
		ServiceID: &rootCanalID,
		Date:      testMonday,
		Time:      "09:00",
	})

	var slotErr *SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError for overlapping span, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("insert must not run for an overlapping booking: %v", err)
	}
}

func TestBookRejectsSpanPastClosing(t *testing.T) {
	patientID := uuid.New()
	rootCanalID := uuid.New()
	catalog := clinic.NewStaticCatalog([]clinic.Service{
		{ID: rootCanalID, Name: "Root Canal", DurationMinutes: 60},
	}, nil)
	svc, mock := newTestService(t, catalog)

	// Tuesday closes at 12:00; a 60-minute booking at 11:30 would run past it.
	mock.ExpectBegin()
	expectDayLock(mock, testTuesday, emptyApptRows())
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testTuesday, rootCanalID).
		WillReturnRows(emptyApptRows())
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), BookRequest{
		PatientID: patientID,
		ServiceID: &rootCanalID,
		Date:      testTuesday,
		Time:      "11:30",
	})

	var slotErr *SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError past closing, got %v", err)
	}
}

func TestBookLongServiceWhenSpanFree(t *testing.T) {
	patientID := uuid.New()
	rootCanalID := uuid.New()
	catalog := clinic.NewStaticCatalog([]clinic.Service{
		{ID: rootCanalID, Name: "Root Canal", DurationMinutes: 60},
	}, nil)
	svc, mock := newTestService(t, catalog)

	existing := Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		Date:            testMonday,
		Time:            "09:30",
		DurationMinutes: 30,
		Status:          StatusScheduled,
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}

	mock.ExpectBegin()
	expectDayLock(mock, testMonday, apptRow(existing))
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testMonday, rootCanalID).
		WillReturnRows(emptyApptRows())
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	appt, err := svc.Book(context.Background(), BookRequest{
		PatientID: patientID,
		ServiceID: &rootCanalID,
		Date:      testMonday,
		Time:      "10:00",
	})
	if err != nil {
		t.Fatalf("Book returned error: %v", err)
	}
	if appt.DurationMinutes != 60 {
		t.Errorf("expected service duration 60, got %d", appt.DurationMinutes)
	}
}

// Every slot the availability engine offers must be immediately bookable
// against the same appointment set.
func TestOfferedSlotsAreBookable(t *testing.T) {
	day := []Appointment{
		{
			ID: uuid.New(), PatientID: uuid.New(), Date: testMonday,
			Time: "10:00", DurationMinutes: 60, Status: StatusScheduled,
			CreatedAt: fixedNow(), UpdatedAt: fixedNow(),
		},
		{
			ID: uuid.New(), PatientID: uuid.New(), Date: testMonday,
			Time: "14:00", DurationMinutes: 45, Status: StatusScheduled,
			CreatedAt: fixedNow(), UpdatedAt: fixedNow(),
		},
	}

	engine := NewEngine(testHours(), nil).WithNow(fixedNow)
	free, err := engine.FreeSlots(testMonday, day)
	if err != nil {
		t.Fatalf("FreeSlots returned error: %v", err)
	}
	if len(free.Slots) == 0 {
		t.Fatal("expected offered slots")
	}

	for _, slot := range free.Slots {
		t.Run(slot, func(t *testing.T) {
			svc, mock := newTestService(t, nil)
			patientID := uuid.New()

			mock.ExpectBegin()
			expectDayLock(mock, testMonday, apptRow(day...))
			mock.ExpectQuery("patient_id").
				WithArgs(patientID, testMonday).
				WillReturnRows(emptyApptRows())
			mock.ExpectExec("INSERT INTO appointments").
				WithArgs(anyArgs(15)...).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
			mock.ExpectCommit()
			mock.ExpectRollback()

			if _, err := svc.Book(context.Background(), BookRequest{
				PatientID: patientID,
				Date:      testMonday,
				Time:      slot,
			}); err != nil {
				t.Errorf("offered slot %s not bookable: %v", slot, err)
			}
		})
	}
}

// Same round trip with a service spanning two grid slots: an offered slot
// is bookable exactly when the following slot is free as well.
func TestOfferedSlotsAreBookableForLongService(t *testing.T) {
	rootCanalID := uuid.New()
	catalog := clinic.NewStaticCatalog([]clinic.Service{
		{ID: rootCanalID, Name: "Root Canal", DurationMinutes: 60},
	}, nil)

	day := []Appointment{
		{
			ID: uuid.New(), PatientID: uuid.New(), Date: testMonday,
			Time: "10:00", DurationMinutes: 60, Status: StatusScheduled,
			CreatedAt: fixedNow(), UpdatedAt: fixedNow(),
		},
		{
			ID: uuid.New(), PatientID: uuid.New(), Date: testMonday,
			Time: "14:00", DurationMinutes: 45, Status: StatusScheduled,
			CreatedAt: fixedNow(), UpdatedAt: fixedNow(),
		},
	}

	engine := NewEngine(testHours(), nil).WithNow(fixedNow)
	free, err := engine.FreeSlots(testMonday, day)
	if err != nil {
		t.Fatalf("FreeSlots returned error: %v", err)
	}

	for _, slot := range free.Slots {
		start, err := ParseSlotTime(slot)
		if err != nil {
			t.Fatalf("bad slot %s: %v", slot, err)
		}
		fits := containsSlot(free.Slots, minutesToSlot(start+30))

		t.Run(slot, func(t *testing.T) {
			svc, mock := newTestService(t, catalog)
			patientID := uuid.New()

			mock.ExpectBegin()
			expectDayLock(mock, testMonday, apptRow(day...))
			mock.ExpectQuery("patient_id").
				WithArgs(patientID, testMonday, rootCanalID).
				WillReturnRows(emptyApptRows())
			if fits {
				mock.ExpectExec("INSERT INTO appointments").
					WithArgs(anyArgs(15)...).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
			}
			mock.ExpectRollback()

			_, err := svc.Book(context.Background(), BookRequest{
				PatientID: patientID,
				ServiceID: &rootCanalID,
				Date:      testMonday,
				Time:      slot,
			})
			if fits && err != nil {
				t.Errorf("60-minute booking at %s should fit: %v", slot, err)
			}
			if !fits {
				var slotErr *SlotUnavailableError
				if !errors.As(err, &slotErr) {
					t.Errorf("60-minute booking at %s should not fit, got %v", slot, err)
				}
			}
		})
	}
}

func TestCancelFlipsStatusOnce(t *testing.T) {
	svc, mock := newTestService(t, nil)
	patientID := uuid.New()

	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		Date:            testMonday,
		Time:            "09:00",
		DurationMinutes: 30,
		Status:          StatusScheduled,
		Notes:           "first visit",
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}

	mock.ExpectQuery("WHERE id").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectBegin()
	expectDayLock(mock, testMonday, apptRow(appt))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectExec("cancel_count = cancel_count").
		WithArgs(appt.ID, "first visit\nCancelled: feeling better").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	cancelled, err := svc.Cancel(context.Background(), patientID, appt.ID, "feeling better")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if cancelled.Status != StatusCancelled || !cancelled.HasBeenCancelled {
		t.Error("expected cancelled status flags")
	}
	if cancelled.CancelCount != 1 {
		t.Errorf("expected cancel count 1, got %d", cancelled.CancelCount)
	}
	if cancelled.Notes != "first visit\nCancelled: feeling better" {
		t.Errorf("unexpected notes: %q", cancelled.Notes)
	}
}

func TestCancelAlreadyCancelled(t *testing.T) {
	svc, mock := newTestService(t, nil)
	patientID := uuid.New()

	appt := Appointment{
		ID:               uuid.New(),
		PatientID:        patientID,
		Date:             testMonday,
		Time:             "09:00",
		DurationMinutes:  30,
		Status:           StatusCancelled,
		HasBeenCancelled: true,
		CancelCount:      1,
		CreatedAt:        fixedNow(),
		UpdatedAt:        fixedNow(),
	}

	mock.ExpectQuery("WHERE id").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectBegin()
	expectDayLock(mock, testMonday, emptyApptRows())
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectRollback()

	_, err := svc.Cancel(context.Background(), patientID, appt.ID, "")
	if !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
}

func TestCancelRejectsForeignAppointment(t *testing.T) {
	svc, mock := newTestService(t, nil)

	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		Date:            testMonday,
		Time:            "09:00",
		DurationMinutes: 30,
		Status:          StatusScheduled,
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}

	mock.ExpectQuery("WHERE id").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))

	_, err := svc.Cancel(context.Background(), uuid.New(), appt.ID, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign appointment, got %v", err)
	}
}

func TestRescheduleMovesInPlace(t *testing.T) {
	svc, mock := newTestService(t, nil)
	patientID := uuid.New()

	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		Date:            testMonday,
		Time:            "09:00",
		DurationMinutes: 30,
		Status:          StatusScheduled,
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}

	mock.ExpectQuery("WHERE id").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectBegin()
	// Two day locks: source Monday and target Tuesday, key order.
	expectDayLock(mock, testMonday, apptRow(appt))
	expectDayLock(mock, testTuesday, emptyApptRows())
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testTuesday, appt.ID).
		WillReturnRows(emptyApptRows())
	mock.ExpectExec("reschedule_count = reschedule_count").
		WithArgs(appt.ID, testTuesday, "10:00").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	moved, err := svc.Reschedule(context.Background(), patientID, appt.ID, testTuesday, "10:00")
	if err != nil {
		t.Fatalf("Reschedule returned error: %v", err)
	}
	if moved.Date != testTuesday || moved.Time != "10:00" {
		t.Errorf("expected move to %s 10:00, got %s %s", testTuesday, moved.Date, moved.Time)
	}
	if !moved.HasBeenRescheduled || moved.RescheduleCount != 1 {
		t.Errorf("expected reschedule flags set, got count %d", moved.RescheduleCount)
	}
}

func TestRescheduleWithinSameDayFreesOwnSlot(t *testing.T) {
	svc, mock := newTestService(t, nil)
	patientID := uuid.New()

	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		Date:            testTuesday,
		Time:            "09:00",
		DurationMinutes: 60,
		Status:          StatusScheduled,
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}

	mock.ExpectQuery("WHERE id").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectBegin()
	expectDayLock(mock, testTuesday, apptRow(appt))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testTuesday, appt.ID).
		WillReturnRows(emptyApptRows())
	mock.ExpectExec("reschedule_count = reschedule_count").
		WithArgs(appt.ID, testTuesday, "09:30").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	// The move to 09:30 overlaps the appointment's current 09:00-10:00
	// span; its own rows must not block it.
	moved, err := svc.Reschedule(context.Background(), patientID, appt.ID, testTuesday, "09:30")
	if err != nil {
		t.Fatalf("Reschedule returned error: %v", err)
	}
	if moved.Time != "09:30" {
		t.Errorf("expected 09:30, got %s", moved.Time)
	}
}

func TestRescheduleRejectsOverlapWithLaterAppointment(t *testing.T) {
	svc, mock := newTestService(t, nil)
	patientID := uuid.New()

	appt := Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		Date:            testMonday,
		Time:            "09:00",
		DurationMinutes: 60,
		Status:          StatusScheduled,
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}
	other := Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		Date:            testMonday,
		Time:            "10:30",
		DurationMinutes: 30,
		Status:          StatusScheduled,
		CreatedAt:       fixedNow(),
		UpdatedAt:       fixedNow(),
	}

	mock.ExpectQuery("WHERE id").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectBegin()
	expectDayLock(mock, testMonday, apptRow(appt, other))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))
	mock.ExpectQuery("patient_id").
		WithArgs(patientID, testMonday, appt.ID).
		WillReturnRows(emptyApptRows())
	mock.ExpectRollback()

	// Moving the 60-minute appointment to 10:00 would cover 10:30, which
	// the other appointment holds.
	_, err := svc.Reschedule(context.Background(), patientID, appt.ID, testMonday, "10:00")

	var slotErr *SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("expected SlotUnavailableError for overlapping move, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("update must not run for an overlapping move: %v", err)
	}
}

func TestRescheduleCancelledFails(t *testing.T) {
	svc, mock := newTestService(t, nil)
	patientID := uuid.New()

	appt := Appointment{
		ID:               uuid.New(),
		PatientID:        patientID,
		Date:             testMonday,
		Time:             "09:00",
		DurationMinutes:  30,
		Status:           StatusCancelled,
		HasBeenCancelled: true,
		CreatedAt:        fixedNow(),
		UpdatedAt:        fixedNow(),
	}

	mock.ExpectQuery("WHERE id").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))

	_, err := svc.Reschedule(context.Background(), patientID, appt.ID, testTuesday, "10:00")
	if !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
}
