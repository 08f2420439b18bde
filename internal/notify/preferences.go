package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrPatientNotFound is returned when no patient row exists for the id.
var ErrPatientNotFound = errors.New("notify: patient not found")

// Preferences are a patient's notification opt-ins and contact points.
type Preferences struct {
	Name         string
	Email        string
	Phone        string
	EmailEnabled bool
	SMSEnabled   bool
}

// AnyEnabled reports whether at least one channel can reach the patient.
func (p Preferences) AnyEnabled() bool {
	return (p.EmailEnabled && p.Email != "") || (p.SMSEnabled && p.Phone != "")
}

// PreferenceStore resolves per-patient notification preferences.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, patientID uuid.UUID) (Preferences, error)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgPreferenceStore reads preferences off the patients table.
type PgPreferenceStore struct {
	db queryRower
}

func NewPgPreferenceStore(db queryRower) *PgPreferenceStore {
	if db == nil {
		panic("notify: preference store requires a database handle")
	}
	return &PgPreferenceStore{db: db}
}

func (s *PgPreferenceStore) GetPreferences(ctx context.Context, patientID uuid.UUID) (Preferences, error) {
	var prefs Preferences
	err := s.db.QueryRow(ctx, `
		SELECT full_name, COALESCE(email, ''), COALESCE(phone, ''), email_opt_in, sms_opt_in
		FROM patients
		WHERE id = $1`,
		patientID,
	).Scan(&prefs.Name, &prefs.Email, &prefs.Phone, &prefs.EmailEnabled, &prefs.SMSEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, ErrPatientNotFound
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("notify: load preferences: %w", err)
	}
	return prefs, nil
}
