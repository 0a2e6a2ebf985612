package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/calendar-scheduling/internal/appointment"
	"github.com/hackgods/calendar-scheduling/internal/auth"
)

// Scheduler is the booking engine as seen by the HTTP layer.
type Scheduler interface {
	GetAvailableSlots(ctx context.Context, caller auth.Caller, calendarID int64, date string) ([]appointment.AvailableSlot, error)
	ProcessAppointment(ctx context.Context, caller auth.Caller, sub appointment.Submission) (*appointment.BookingResult, error)
	GetAppointment(ctx context.Context, caller auth.Caller, id int64, token string) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, caller auth.Caller, id int64, token, reason string) (bool, error)
	ApproveAppointment(ctx context.Context, caller auth.Caller, id int64) error
}

type RouterConfig struct {
	Scheduler Scheduler
	Authz     auth.AuthorizationContext
	Postgres  Pinger
	Redis     Pinger
	Logger    zerolog.Logger
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(cfg.Authz))

		r.Get("/calendars/{id}/slots", listSlotsHandler(cfg.Scheduler))

		r.Post("/appointments", createAppointmentHandler(cfg.Scheduler))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Scheduler))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Scheduler))
		r.Post("/appointments/{id}/approve", approveAppointmentHandler(cfg.Scheduler))
	})

	return r
}
