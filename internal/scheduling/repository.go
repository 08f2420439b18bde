package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool / pgx.Tx the repository needs.
// pgxmock satisfies it in tests.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const appointmentColumns = `id, patient_id, dentist_id, service_id,
	to_char(date, 'YYYY-MM-DD'), time, duration_minutes, status,
	has_been_rescheduled, reschedule_count, has_been_cancelled, cancel_count,
	COALESCE(notes, ''), created_at, updated_at`

// PgRepository provides persistence for appointments.
type PgRepository struct {
	db DBTX
}

// NewPgRepository creates a repository over a pgx pool or transaction.
func NewPgRepository(db DBTX) *PgRepository {
	if db == nil {
		panic("scheduling: db handle required")
	}
	return &PgRepository{db: db}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DentistID,
		&a.ServiceID,
		&a.Date,
		&a.Time,
		&a.DurationMinutes,
		&a.Status,
		&a.HasBeenRescheduled,
		&a.RescheduleCount,
		&a.HasBeenCancelled,
		&a.CancelCount,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

// ListDay returns the non-cancelled appointments for a date, optionally
// narrowed to one dentist. Lock-free read used by the availability engine.
func (r *PgRepository) ListDay(ctx context.Context, date string, dentistID *uuid.UUID) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE date = $1 AND status <> 'cancelled'`
	args := []any{date}
	if dentistID != nil {
		query += ` AND dentist_id = $2`
		args = append(args, *dentistID)
	}
	query += ` ORDER BY time`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list day: %w", err)
	}
	return collectAppointments(rows)
}

// LockDay serializes all booking work for a (date, dentist) window. It takes
// a transaction-scoped advisory lock keyed on the window, then returns the
// window's non-cancelled rows locked FOR UPDATE. The advisory lock also
// covers the empty-day case, where there are no rows to lock against
// concurrent inserts.
func (r *PgRepository) LockDay(ctx context.Context, tx pgx.Tx, date string, dentistID *uuid.UUID) ([]Appointment, error) {
	lockKey := date
	if dentistID != nil {
		lockKey = date + ":" + dentistID.String()
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, fmt.Errorf("scheduling: acquire day lock: %w", err)
	}

	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE date = $1 AND status <> 'cancelled'`
	args := []any{date}
	if dentistID != nil {
		query += ` AND dentist_id = $2`
		args = append(args, *dentistID)
	}
	query += ` ORDER BY time FOR UPDATE`

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: lock day: %w", err)
	}
	return collectAppointments(rows)
}

// FindActiveDuplicate looks for a non-cancelled appointment for the same
// (patient, service, date), excluding excludeID when it is being moved.
// Returns nil when no duplicate exists.
func (r *PgRepository) FindActiveDuplicate(ctx context.Context, tx pgx.Tx, patientID uuid.UUID, serviceID *uuid.UUID, date string, excludeID *uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE patient_id = $1 AND date = $2 AND status <> 'cancelled'`
	args := []any{patientID, date}
	if serviceID != nil {
		args = append(args, *serviceID)
		query += fmt.Sprintf(` AND service_id = $%d`, len(args))
	} else {
		query += ` AND service_id IS NULL`
	}
	if excludeID != nil {
		args = append(args, *excludeID)
		query += fmt.Sprintf(` AND id <> $%d`, len(args))
	}
	query += ` LIMIT 1`

	a, err := scanAppointment(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("scheduling: duplicate check: %w", err)
	}
	return a, nil
}

// GetForUpdate loads one appointment with a row lock.
func (r *PgRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(tx.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scheduling: load appointment: %w", err)
	}
	return a, nil
}

// GetByID loads one appointment without locking.
func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scheduling: load appointment: %w", err)
	}
	return a, nil
}

// ListByPatient returns a patient's appointments, newest day first.
func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, time DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list by patient: %w", err)
	}
	return collectAppointments(rows)
}

// Insert persists a new appointment row.
func (r *PgRepository) Insert(ctx context.Context, tx pgx.Tx, a *Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, dentist_id, service_id, date, time,
			duration_minutes, status, has_been_rescheduled, reschedule_count,
			has_been_cancelled, cancel_count, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.PatientID, a.DentistID, a.ServiceID, a.Date, a.Time,
		a.DurationMinutes, a.Status, a.HasBeenRescheduled, a.RescheduleCount,
		a.HasBeenCancelled, a.CancelCount, a.Notes, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return nil
}

// UpdateSchedule moves an appointment to a new date/time in place.
func (r *PgRepository) UpdateSchedule(ctx context.Context, tx pgx.Tx, id uuid.UUID, newDate, newTime string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET date = $2, time = $3,
			has_been_rescheduled = TRUE,
			reschedule_count = reschedule_count + 1,
			updated_at = NOW()
		WHERE id = $1`,
		id, newDate, newTime,
	)
	if err != nil {
		return fmt.Errorf("scheduling: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCancelled soft-deletes an appointment and records the reason.
func (r *PgRepository) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, notes string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			has_been_cancelled = TRUE,
			cancel_count = cancel_count + 1,
			notes = $2,
			updated_at = NOW()
		WHERE id = $1`,
		id, notes,
	)
	if err != nil {
		return fmt.Errorf("scheduling: mark cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
