package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"

	"river-backend/internal/handlers"
	"river-backend/internal/middleware"
	"river-backend/internal/websocket"
)

type Options struct {
	Logger            *logrus.Logger
	JWTAuth           *middleware.JWTAuth
	GenerationHandler *handlers.GenerationHandler
	ClaimHandler      *handlers.ClaimHandler
	WSHub             *websocket.Hub
	// GenerateLimiter throttles POST /generate per client IP. Optional.
	GenerateLimiter *middleware.RateLimiter
	PublicIngestKey string
	FrontendURL     string
	RequestTimeout  time.Duration
}

func New(opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(chimiddleware.Recoverer)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session)

		r.Group(func(r chi.Router) {
			if opts.RequestTimeout > 0 {
				r.Use(chimiddleware.Timeout(opts.RequestTimeout))
			}

			// ──── Generation (anonymous or signed in) ────
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAPIKey(opts.PublicIngestKey))
				if opts.GenerateLimiter != nil {
					r.Use(opts.GenerateLimiter.Middleware)
				}
				r.Use(opts.JWTAuth.Optional)
				r.Post("/generate", opts.GenerationHandler.Generate)
			})

			r.Route("/generations", func(r chi.Router) {
				r.With(opts.JWTAuth.Middleware).Get("/", opts.GenerationHandler.List)
				r.With(opts.JWTAuth.Optional).Get("/{id}", opts.GenerationHandler.Get)
			})

			// ──── Claim (called after sign-in) ────
			r.With(opts.JWTAuth.Middleware).Post("/claim", opts.ClaimHandler.Claim)
		})

		// ──── WebSocket ────
		r.Get("/ws", opts.WSHub.HandleWebSocket)
	})

	cors := gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(splitOrigins(opts.FrontendURL)),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.SessionHeader, middleware.APIKeyHeader}),
		gorillahandlers.ExposedHeaders([]string{chimiddleware.RequestIDHeader}),
	)
	return cors(r)
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
