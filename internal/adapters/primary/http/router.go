package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	mw "github.com/lorrc/service-desk-notifier/internal/adapters/primary/http/middleware"
)

// RouterConfig collects the handlers mounted on the operational server.
type RouterConfig struct {
	Health         *HealthHandler
	Metrics        http.Handler
	WebSocket      http.Handler // nil when notifications do not go out over websockets
	ConnectLimiter *mw.RateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter builds the operational HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", mw.RequestIDHeader},
			ExposedHeaders:   []string{mw.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", cfg.Health.HandleHealth)
	r.Get("/health/live", cfg.Health.HandleLiveness)
	r.Get("/health/ready", cfg.Health.HandleReadiness)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	if cfg.WebSocket != nil {
		r.Group(func(r chi.Router) {
			if cfg.ConnectLimiter != nil {
				r.Use(cfg.ConnectLimiter.Middleware)
			}
			r.Method(http.MethodGet, "/ws", cfg.WebSocket)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Code: "NOT_FOUND"})
	})

	return r
}
