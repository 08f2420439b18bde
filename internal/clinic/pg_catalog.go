package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgCatalog reads the service/dentist catalog from Postgres.
type PgCatalog struct {
	pool *pgxpool.Pool
}

// NewPgCatalog creates a catalog backed by a pgx pool.
func NewPgCatalog(pool *pgxpool.Pool) *PgCatalog {
	if pool == nil {
		panic("clinic: pgx pool required")
	}
	return &PgCatalog{pool: pool}
}

func (c *PgCatalog) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, name, duration_minutes, price_cents FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("clinic: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents); err != nil {
			return nil, fmt.Errorf("clinic: scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (c *PgCatalog) ListDentists(ctx context.Context) ([]Dentist, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, name, COALESCE(specialty, '') FROM dentists ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("clinic: list dentists: %w", err)
	}
	defer rows.Close()

	var dentists []Dentist
	for rows.Next() {
		var d Dentist
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialty); err != nil {
			return nil, fmt.Errorf("clinic: scan dentist: %w", err)
		}
		dentists = append(dentists, d)
	}
	return dentists, rows.Err()
}

func (c *PgCatalog) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	var s Service
	err := c.pool.QueryRow(ctx,
		`SELECT id, name, duration_minutes, price_cents FROM services WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.PriceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("clinic: get service: %w", err)
	}
	return &s, nil
}
