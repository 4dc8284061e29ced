// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/licenseops/dunning/internal/services/dunning"
)

type DispatchHandler struct {
	dispatcher *dunning.Dispatcher
}

func NewDispatchHandler(dispatcher *dunning.Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher}
}

// Routes is mounted under /licenses/{id} alongside the license routes.
func (h *DispatchHandler) Routes(r chi.Router) {
	r.Post("/send-email", h.SendEmail)
	r.Post("/send-whatsapp", h.SendChat)
}

// SendEmail handles POST /licenses/{id}/send-email
func (h *DispatchHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseIntParam64(w, r, "id", "license ID")
	if !ok {
		return
	}

	result, err := h.dispatcher.SendEmail(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "Failed to send license email")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// SendChat handles POST /licenses/{id}/send-whatsapp. The body is optional.
// A skipped reminder is a 200 with skipped=true.
func (h *DispatchHandler) SendChat(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseIntParam64(w, r, "id", "license ID")
	if !ok {
		return
	}

	var opts dunning.ChatOptions
	if !DecodeJSONOptional(w, r, &opts) {
		return
	}

	result, err := h.dispatcher.SendChat(r.Context(), id, opts)
	if err != nil {
		respondDomainError(w, err, "Failed to send chat reminder")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
