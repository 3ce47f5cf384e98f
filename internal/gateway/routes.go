// Package gateway is the Gateway Front End's authenticated API surface: it
// mounts presets, computes, and auth/session handlers onto the router
// internal/httpserver builds, and wires the HTTP/WebSocket proxies onto the
// unauthenticated host/path-routed surface end users hit directly.
package gateway

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/compute-gateway/internal/auth"
	"github.com/wisbric/compute-gateway/internal/compute"
	"github.com/wisbric/compute-gateway/internal/preset"
)

// Deps bundles the services routes.go wires onto the router.
type Deps struct {
	Auth      *auth.Service
	AuthStore *auth.Store
	Presets   *preset.Service
	Computes  *compute.Service
	Login     *auth.RateLimiter
	Logger    *slog.Logger
}

// Mount attaches every authenticated API route to r (expected to be
// httpserver.Server.APIRouter, already behind auth.RequireAuth).
func Mount(r chi.Router, d Deps) {
	h := &handlers{deps: d}

	r.Route("/presets", func(r chi.Router) {
		r.Get("/", h.listPresets)
		r.Post("/", h.createPreset)
		r.Get("/{presetID}", h.getPreset)
		r.Delete("/{presetID}", h.deletePreset)
	})

	r.Route("/v1/sandboxes", func(r chi.Router) {
		r.Get("/", h.listComputes)
		r.Post("/", h.createCompute)
		r.Post("/find", h.findCompute)
		r.Post("/find-or-create", h.findOrCreateCompute)
		r.Get("/{computeID}", h.getCompute)
		r.Delete("/{computeID}", h.deleteCompute)
		r.Post("/{computeID}/extend", h.extendCompute)
	})

	adminOnly := auth.RequireRole(d.AuthStore, auth.RoleAdmin)
	r.Route("/organizations/{orgID}/api-keys", func(r chi.Router) {
		r.Get("/", h.listAPIKeys)
		r.With(adminOnly).Post("/", h.createAPIKey)
		r.With(adminOnly).Delete("/{keyID}", h.deleteAPIKey)
	})

	r.Route("/auth/sessions", func(r chi.Router) {
		r.Post("/", h.createClaimableSession)
		r.Post("/{sessionID}/claim", h.claimSession)
		r.Post("/{sessionID}/resources", h.addResourceToSession)
	})

	r.Get("/auth/status", h.authStatus)
	r.Get("/auth/info", h.authInfo)
}

// MountPublicAuth attaches the unauthenticated auth endpoints (register,
// login, refresh) that must run ahead of auth.RequireAuth.
func MountPublicAuth(r chi.Router, d Deps) {
	h := &handlers{deps: d}
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Post("/auth/refresh", h.refresh)
}

type handlers struct {
	deps Deps
}
