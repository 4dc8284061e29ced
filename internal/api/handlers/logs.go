// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/jobs"
)

type LogsHandler struct {
	service *jobs.Service
}

func NewLogsHandler(service *jobs.Service) *LogsHandler {
	return &LogsHandler{service: service}
}

func (h *LogsHandler) Routes(r chi.Router) {
	r.Get("/", h.ListLogs)
	r.Post("/", h.AppendLog)
}

// ListLogs handles GET /license-notification-logs?jobId=&rucOrDni=&limit=
func (h *LogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := h.service.ListLogs(r.Context(), models.NotificationLogFilter{
		JobID:    strings.TrimSpace(q.Get("jobId")),
		RucOrDni: strings.TrimSpace(q.Get("rucOrDni")),
		Limit:    ParseLimit(r, jobs.MaxListLimit),
	})
	if err != nil {
		respondDomainError(w, err, "Failed to list notification logs")
		return
	}

	RespondJSON(w, http.StatusOK, logs)
}

// AppendLog handles POST /license-notification-logs
func (h *LogsHandler) AppendLog(w http.ResponseWriter, r *http.Request) {
	var entry jobs.LogEntry
	if !DecodeJSON(w, r, &entry) {
		return
	}

	stored, err := h.service.AppendLog(r.Context(), &entry)
	if err != nil {
		respondDomainError(w, err, "Failed to record notification log")
		return
	}

	RespondJSON(w, http.StatusCreated, stored)
}
