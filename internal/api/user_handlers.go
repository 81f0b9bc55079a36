// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/render"

	"github.com/empaai/empaai/internal/auth"
)

// mutableProfileFields lists the body keys PATCH /api/users/profile accepts.
var mutableProfileFields = map[string]bool{"email": true}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, currentUser(r.Context()))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		h.writeBadBody(w, r)
		return
	}

	update, err := parseProfileUpdate(body)
	if err != nil {
		h.writeError(w, r, err, "Failed to update profile")
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), currentUser(r.Context()).ID, update)
	if err != nil {
		h.writeError(w, r, err, "Failed to update profile")
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

func parseProfileUpdate(body map[string]json.RawMessage) (auth.ProfileUpdate, error) {
	var (
		update  auth.ProfileUpdate
		details []auth.FieldError
	)

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !mutableProfileFields[k] {
			details = append(details, auth.FieldError{Field: k, Message: "cannot be changed"})
		}
	}
	if raw, ok := body["email"]; ok {
		var email string
		if err := json.Unmarshal(raw, &email); err != nil {
			details = append(details, auth.FieldError{Field: "email", Message: "must be a string"})
		} else {
			update.Email = &email
		}
	}
	if len(details) > 0 {
		return auth.ProfileUpdate{}, auth.ValidationError("Validation failed", details...)
	}
	return update, nil
}
