package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/dmitrijs2005/linksphere/internal/logging"
	"github.com/dmitrijs2005/linksphere/internal/server/metrics"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	AdminSecret    string
}

// NewRouter builds the public HTTP surface.
func NewRouter(h *Handler, tokens TokenDecoder, m *metrics.Metrics, log logging.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe(log, m))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.AdminSecretHeaderName},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/verify", h.Verify)
			r.Post("/resend-otp", h.ResendOTP)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.Post("/logout", h.Logout)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin(cfg.AdminSecret))
			r.Post("/otp/reset", h.AdminResetOTP)
			r.Get("/otp/attempts", h.AdminAttempts)
		})

		r.Group(func(r chi.Router) {
			r.Use(Guard(tokens, log))
			r.Get("/me", h.Me)
		})
	})

	return r
}
