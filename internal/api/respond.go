// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package api

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/pkg/errutil"
)

type errorBody struct {
	Error   string            `json:"error"`
	Details []auth.FieldError `json:"details,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

// loginBlockedBody is the 403 answer for unverified logins; the client
// uses email to offer a resend.
type loginBlockedBody struct {
	Error            string `json:"error"`
	EmailNotVerified bool   `json:"emailNotVerified"`
	Email            string `json:"email"`
}

type loginBody struct {
	User    *auth.User `json:"user"`
	Message string     `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

// statusFor maps a domain error code to its HTTP status. Unknown codes are
// internal errors.
func statusFor(code string) int {
	switch code {
	case auth.CodeValidation, auth.CodeDuplicateEmail, auth.CodeInvalidToken,
		auth.CodeAlreadyVerified, auth.CodeTokenExpired:
		return http.StatusBadRequest
	case auth.CodeInvalidCredentials, auth.CodeUnauthorized:
		return http.StatusUnauthorized
	case auth.CodeEmailNotVerified, auth.CodeForbidden:
		return http.StatusForbidden
	case auth.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers err. Domain errors carry their user-facing message;
// anything else is logged and answered with fallback.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(errutil.Code(err))
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), h.logger, fallback, err)
		writeJSON(w, r, status, errorBody{Error: fallback})
		return
	}

	body := errorBody{Error: err.Error()}
	if v, ok := errutil.ContextValue(err, auth.DetailsKey); ok {
		if details, ok := v.([]auth.FieldError); ok {
			body.Details = details
		}
	}
	writeJSON(w, r, status, body)
}

func (h *Handler) writeBadBody(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
}
