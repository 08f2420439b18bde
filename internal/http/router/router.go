package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smiledesk/patient-portal/internal/http/handlers"
	httpmiddleware "github.com/smiledesk/patient-portal/internal/http/middleware"
	"github.com/smiledesk/patient-portal/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Chat           *handlers.ChatHandler
	Appointments   *handlers.AppointmentsHandler
	Waitlist       *handlers.WaitlistHandler
	Health         *handlers.HealthHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.Live)
		r.Get("/readyz", cfg.Health.Ready)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.Chat != nil {
			api.Post("/chat", cfg.Chat.HandleTurn)
		}
		if cfg.Appointments != nil {
			api.Get("/patients/{patientID}/appointments", cfg.Appointments.List)
			api.Get("/availability", cfg.Appointments.Availability)
		}
		if cfg.Waitlist != nil {
			api.Post("/waitlist", cfg.Waitlist.Create)
		}
	})

	return r
}
