// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

// Package api exposes the auth service as a JSON HTTP API.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/empaai/empaai/internal/auth"
)

// DefaultCookieName is the session cookie name.
const DefaultCookieName = "empaai_session"

// RequestRecorder records one finished request. Route is the chi pattern.
type RequestRecorder interface {
	RecordHTTPRequest(route string, status int)
}

type noopRecorder struct{}

func (noopRecorder) RecordHTTPRequest(string, int) {}

// RateLimit is a request budget per client IP.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Options configures the handler.
type Options struct {
	// CookieName defaults to DefaultCookieName.
	CookieName string
	// SecureCookie sets the Secure attribute; enable in production.
	SecureCookie bool
	Logger       *slog.Logger
	Recorder     RequestRecorder
	// RateLimits maps a route path under /api/auth to its budget. Routes
	// without an entry are not limited.
	RateLimits map[string]RateLimit
}

// DefaultRateLimits returns the per-IP budgets for the public auth routes.
func DefaultRateLimits() map[string]RateLimit {
	return map[string]RateLimit{
		"/signup":                 {Requests: 5, Window: time.Hour},
		"/login":                  {Requests: 10, Window: 5 * time.Minute},
		"/verify-email":           {Requests: 10, Window: 10 * time.Minute},
		"/resend-verification":    {Requests: 3, Window: time.Hour},
		"/request-password-reset": {Requests: 3, Window: time.Hour},
		"/reset-password":         {Requests: 10, Window: 10 * time.Minute},
	}
}

// Handler serves the HTTP API.
type Handler struct {
	svc      *auth.Service
	cookie   cookieConfig
	logger   *slog.Logger
	recorder RequestRecorder
	limits   map[string]RateLimit
}

// NewHandler creates the API handler over svc.
func NewHandler(svc *auth.Service, opts Options) *Handler {
	h := &Handler{
		svc: svc,
		cookie: cookieConfig{
			name:   opts.CookieName,
			secure: opts.SecureCookie,
			maxAge: svc.Sessions().TTL(),
		},
		logger:   opts.Logger,
		recorder: opts.Recorder,
		limits:   opts.RateLimits,
	}
	if h.cookie.name == "" {
		h.cookie.name = DefaultCookieName
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.recorder == nil {
		h.recorder = noopRecorder{}
	}
	return h
}

// Routes builds the router wrapped with OpenTelemetry instrumentation.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api/auth", func(r chi.Router) {
		h.post(r, "/signup", h.signup)
		h.post(r, "/login", h.login)
		h.post(r, "/logout", h.logout)
		h.post(r, "/verify-email", h.verifyEmail)
		h.post(r, "/resend-verification", h.resendVerification)
		h.post(r, "/request-password-reset", h.requestPasswordReset)
		h.post(r, "/reset-password", h.resetPassword)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Use(h.requireSession)
		r.Get("/me", h.me)
		r.Patch("/profile", h.updateProfile)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusNotFound, errorBody{Error: "Not found"})
	})

	return otelhttp.NewHandler(r, "empaai.api")
}

func (h *Handler) post(r chi.Router, path string, fn http.HandlerFunc) {
	if limit, ok := h.limits[path]; ok && limit.Requests > 0 {
		r.With(httprate.LimitByIP(limit.Requests, limit.Window)).Post(path, fn)
		return
	}
	r.Post(path, fn)
}
