package clinic

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrServiceNotFound is returned when a service id has no catalog entry.
var ErrServiceNotFound = errors.New("clinic: service not found")

// Service is a bookable treatment from the clinic catalog.
type Service struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int       `json:"price_cents"`
}

// Dentist is a practitioner from the clinic catalog.
type Dentist struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
}

// Catalog exposes the service/dentist reference data. The scheduling core
// only reads ids and durations; everything else is display data.
type Catalog interface {
	ListServices(ctx context.Context) ([]Service, error)
	ListDentists(ctx context.Context) ([]Dentist, error)
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
}

// StaticCatalog serves a fixed service/dentist list. Used in tests and
// single-clinic deployments where the catalog lives in configuration.
type StaticCatalog struct {
	services []Service
	dentists []Dentist
}

// NewStaticCatalog creates a catalog from fixed slices.
func NewStaticCatalog(services []Service, dentists []Dentist) *StaticCatalog {
	return &StaticCatalog{services: services, dentists: dentists}
}

func (c *StaticCatalog) ListServices(ctx context.Context) ([]Service, error) {
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out, nil
}

func (c *StaticCatalog) ListDentists(ctx context.Context) ([]Dentist, error) {
	out := make([]Dentist, len(c.dentists))
	copy(out, c.dentists)
	return out, nil
}

func (c *StaticCatalog) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	for _, svc := range c.services {
		if svc.ID == id {
			s := svc
			return &s, nil
		}
	}
	return nil, ErrServiceNotFound
}
