// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package api

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/empaai/empaai/internal/auth"
	"github.com/empaai/empaai/pkg/errutil"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupInput
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeBadBody(w, r)
		return
	}

	res, err := h.svc.Signup(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "Failed to create account")
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeBadBody(w, r)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errutil.Code(err) == auth.CodeEmailNotVerified {
			email, _ := errutil.ContextValue(err, "email")
			emailStr, _ := email.(string)
			writeJSON(w, r, http.StatusForbidden, loginBlockedBody{
				Error:            err.Error(),
				EmailNotVerified: true,
				Email:            emailStr,
			})
			return
		}
		h.writeError(w, r, err, "Failed to login")
		return
	}

	h.cookie.set(w, res.Token)
	writeJSON(w, r, http.StatusOK, loginBody{User: res.User, Message: "Login successful"})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), h.cookie.token(r)); err != nil {
		h.writeError(w, r, err, "Failed to logout")
		return
	}
	h.cookie.clear(w)
	writeJSON(w, r, http.StatusOK, messageBody{Message: "Logout successful"})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeBadBody(w, r)
		return
	}

	if err := h.svc.VerifyEmail(r.Context(), req.Token); err != nil {
		h.writeError(w, r, err, "Failed to verify email")
		return
	}
	writeJSON(w, r, http.StatusOK, messageBody{Message: "Email verified successfully"})
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeBadBody(w, r)
		return
	}

	msg, err := h.svc.ResendVerification(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err, "Failed to send verification email")
		return
	}
	writeJSON(w, r, http.StatusOK, messageBody{Message: msg})
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeBadBody(w, r)
		return
	}

	msg, err := h.svc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err, "Failed to process password reset request")
		return
	}
	writeJSON(w, r, http.StatusOK, messageBody{Message: msg})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeBadBody(w, r)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeError(w, r, err, "Failed to reset password")
		return
	}
	writeJSON(w, r, http.StatusOK, messageBody{Message: "Password reset successfully"})
}
