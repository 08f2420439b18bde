package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the pgx query surface the repository needs. Satisfied by
// *pgxpool.Pool, pgx.Tx, and pgxmock.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgRepository stores waitlist entries in Postgres.
type PgRepository struct {
	db DBTX
}

func NewPgRepository(db DBTX) *PgRepository {
	if db == nil {
		panic("waitlist: repository requires a database handle")
	}
	return &PgRepository{db: db}
}

// Create inserts a new active entry.
func (r *PgRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = StatusActive
	_, err := r.db.Exec(ctx, `
		INSERT INTO waitlist_entries
			(id, patient_id, preferred_date, preferred_time, service_id, dentist_id, status, auto_book, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NOW())`,
		e.ID, e.PatientID, e.PreferredDate, e.PreferredTime, e.ServiceID, e.DentistID, e.Status, e.AutoBook,
	)
	if err != nil {
		return fmt.Errorf("waitlist: create entry: %w", err)
	}
	return nil
}

// ListActive returns active entries whose preferred date is today or
// later. Entries past their preferred date are excluded, not errored.
func (r *PgRepository) ListActive(ctx context.Context, fromDate string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, patient_id, to_char(preferred_date, 'YYYY-MM-DD'),
		       COALESCE(preferred_time, ''), service_id, dentist_id,
		       status, auto_book, notified_at, created_at
		FROM waitlist_entries
		WHERE status = 'active' AND preferred_date >= $1
		ORDER BY created_at ASC
		LIMIT $2`,
		fromDate, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("waitlist: list active entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.PatientID, &e.PreferredDate,
			&e.PreferredTime, &e.ServiceID, &e.DentistID,
			&e.Status, &e.AutoBook, &e.NotifiedAt, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("waitlist: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("waitlist: list active entries: %w", err)
	}
	return entries, nil
}

// MarkNotified transitions an active entry to its terminal notified state.
func (r *PgRepository) MarkNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.markTerminal(ctx, id, StatusNotified, at)
}

// MarkConverted transitions an active entry to converted after auto-booking.
func (r *PgRepository) MarkConverted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.markTerminal(ctx, id, StatusConverted, at)
}

func (r *PgRepository) markTerminal(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = $2, notified_at = $3
		WHERE id = $1 AND status = 'active'`,
		id, status, at,
	)
	if err != nil {
		return fmt.Errorf("waitlist: mark %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("waitlist: entry %s is not active", id)
	}
	return nil
}
