package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Handler   *Handler
	Health    *HealthHandler
	Log       *zap.Logger
	JWTSecret []byte
	RateLimit int // requests per second per client IP, 0 disables
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Second))
	}

	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)

	h := cfg.Handler
	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(cfg.JWTSecret, cfg.Log))

		r.Route("/practitioners/{id}", func(r chi.Router) {
			r.Get("/slots", h.ListSlots)
			r.Get("/appointments", h.ListPractitionerAppointments)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.BookAppointment)
			r.Get("/", h.ListPatientAppointments)
			r.Get("/{id}", h.GetAppointment)
			r.Post("/{id}/confirm", h.ConfirmAppointment)
			r.Post("/{id}/cancel", h.CancelAppointment)
			r.Post("/{id}/complete", h.CompleteAppointment)
			r.Post("/{id}/no-show", h.MarkNoShow)
			r.Post("/{id}/rating", h.RateAppointment)
		})
	})

	return r
}
