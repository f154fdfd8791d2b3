package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
	"github.com/hackgods/telemedicine-scheduling/internal/consultation"
	"github.com/hackgods/telemedicine-scheduling/internal/prescription"
	"github.com/hackgods/telemedicine-scheduling/internal/session"
)

type RouterConfig struct {
	Service       *appointment.Service
	Payments      *appointment.PaymentGate
	Sessions      *session.Handoff
	Availability  *availability.Store
	Prescriptions *prescription.Service
	Consultations *consultation.Service
	Tokens        *auth.TokenManager
	Departments   []config.Department
	Location      *time.Location
	Now           func() time.Time
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Env           string
	Version       string
	Logger        zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	h := &handlers{
		appointments:  cfg.Service,
		payments:      cfg.Payments,
		sessions:      cfg.Sessions,
		availability:  cfg.Availability,
		prescriptions: cfg.Prescriptions,
		consultations: cfg.Consultations,
		departments:   cfg.Departments,
		location:      cfg.Location,
		now:           cfg.Now,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Get("/departments", h.listDepartments)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))

		r.Route("/availability", func(r chi.Router) {
			r.Get("/weekly", h.listWeeklyRules)
			r.Put("/weekly/{weekday}", h.putWeeklyRule)
			r.Get("/overrides", h.listOverrides)
			r.Put("/overrides/{date}", h.putOverride)
			r.Delete("/overrides/{date}", h.deleteOverride)
			r.Get("/open", h.isOpen)
			r.Get("/window", h.window)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.submitAppointment)
			r.Get("/", h.listAppointments)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getAppointment)
				r.Post("/approve", h.approveAppointment)
				r.Post("/reject", h.rejectAppointment)
				r.Post("/cancel", h.cancelAppointment)
				r.Post("/payments", h.recordPayment)
				r.Get("/payments", h.listPayments)
				r.Post("/session", h.joinSession)
				r.Post("/prescriptions", h.prescribe)
				r.Get("/messages", h.listMessages)
				r.Post("/messages", h.sendMessage)
			})
		})

		r.Route("/medications", func(r chi.Router) {
			r.Get("/", h.listMedications)
			r.Put("/{code}", h.putMedication)
			r.Post("/{code}/stock", h.restockMedication)
		})

		r.Route("/prescriptions", func(r chi.Router) {
			r.Get("/", h.listPrescriptions)
			r.Get("/{id}", h.getPrescription)
			r.Post("/{id}/ship", h.shipPrescription)
		})
	})

	return r
}
