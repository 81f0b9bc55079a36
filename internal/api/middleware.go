// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/pkg/errutil"
)

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// currentUser returns the user stored by requireSession.
func currentUser(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userKey).(*auth.User)
	return user
}

// requireSession resolves the session cookie and rejects requests without a
// live session of a verified user.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.svc.Authenticate(r.Context(), h.cookie.token(r))
		if err != nil {
			if statusFor(errutil.Code(err)) != http.StatusInternalServerError {
				h.cookie.clear(w)
			}
			h.writeError(w, r, err, "Failed to get user")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// logRequests emits one line per request and records it by route pattern.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			h.recorder.RecordHTTPRequest(route, status)
			h.logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
