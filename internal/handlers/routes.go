package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes wires HTTP handlers into the provided router.
func RegisterRoutes(r chi.Router, deps Dependencies) {
	health := HealthHandler{Journal: deps.Journal}
	auth := AuthHandler{Backends: deps.Backends, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	videos := VideoHandler{
		Backends:      deps.Backends,
		Sanitizer:     deps.Sanitizer,
		Objects:       deps.Objects,
		MaxUploadSize: deps.MaxUploadSize,
		TempDir:       deps.TempDir,
	}

	optional, required := passthrough, passthrough
	if deps.OptionalSession != nil {
		optional = deps.OptionalSession
	}
	if deps.RequireSession != nil {
		required = deps.RequireSession
	}

	r.Get("/healthz", health.Handle)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit)
		}
		r.Post("/auth/signup", auth.SignUp)
		r.Post("/auth/login", auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(optional)
			r.Get("/auth/me", auth.Me)
			r.Get("/videos", videos.List)
			r.Get("/videos/latest", videos.Latest)
			r.Get("/users/{userID}/videos", videos.ByUser)
		})

		r.Group(func(r chi.Router) {
			r.Use(required)
			r.Get("/auth/account", auth.Account)
			r.Post("/auth/logout", auth.Logout)
			r.Post("/videos", videos.Create)
			r.Post("/videos/import", videos.Import)
		})
	})
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Backends    BackendFactory
	Sessions    SessionTracker
	AuthLimiter RateLimiter
	Sanitizer   Sanitizer
	Objects     ObjectPolicy
	Journal     Pinger
	Metrics     http.Handler

	// OptionalSession and RequireSession attach the caller's session secret
	// to the request context. RateLimit guards every /api/v1 route.
	OptionalSession func(http.Handler) http.Handler
	RequireSession  func(http.Handler) http.Handler
	RateLimit       func(http.Handler) http.Handler

	MaxUploadSize int64
	TempDir       string
}

func passthrough(next http.Handler) http.Handler { return next }
