// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/jobs"
)

// JobsHandler serves notification jobs. The same handler backs the guarded
// API and the narrower internal one; they differ in validation and in how
// batches are applied.
type JobsHandler struct {
	service   *jobs.Service
	validate  jobs.ValidateOptions
	batchMode jobs.BatchMode
}

// NewJobsHandler returns the guarded variant: severity is required and
// batch items succeed or fail independently.
func NewJobsHandler(service *jobs.Service) *JobsHandler {
	return &JobsHandler{
		service:   service,
		validate:  jobs.ValidateOptions{RequireSeverity: true},
		batchMode: jobs.BatchIndependent,
	}
}

// NewInternalJobsHandler returns the internal variant: severity is optional
// and one invalid item rejects the whole batch.
func NewInternalJobsHandler(service *jobs.Service) *JobsHandler {
	return &JobsHandler{
		service:   service,
		batchMode: jobs.BatchAllOrNothing,
	}
}

func (h *JobsHandler) Routes(r chi.Router) {
	r.Get("/", h.ListJobs)
	r.Post("/", h.CreateJobs)
	r.Get("/{id}", h.GetJob)
	if h.batchMode == jobs.BatchIndependent {
		r.Patch("/{id}", h.PatchJob)
	}
}

// ListJobs handles GET /license-notification-jobs?status=&limit=&rucOrDni=
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	found, err := h.service.Find(r.Context(), models.JobFilter{
		Status:   models.JobStatus(strings.TrimSpace(q.Get("status"))),
		RucOrDni: strings.TrimSpace(q.Get("rucOrDni")),
		Limit:    ParseLimit(r, jobs.MaxListLimit),
	})
	if err != nil {
		respondDomainError(w, err, "Failed to list notification jobs")
		return
	}

	RespondJSON(w, http.StatusOK, found)
}

type batchResponse struct {
	Results   []jobs.BatchItemResult `json:"results"`
	Created   int                    `json:"created"`
	Duplicate int                    `json:"duplicate"`
	Failed    int                    `json:"failed"`
}

// CreateJobs handles POST with either a single job object or an array.
// A single new job answers 201, a duplicate 200.
func (h *JobsHandler) CreateJobs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		h.createBatch(w, r, trimmed)
		return
	}

	var payload jobs.Payload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.Upsert(r.Context(), &payload, h.validate)
	if err != nil {
		respondDomainError(w, err, "Failed to store notification job")
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	RespondJSON(w, status, result)
}

func (h *JobsHandler) createBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var payloads []*jobs.Payload
	if err := json.Unmarshal(body, &payloads); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(payloads) == 0 {
		RespondError(w, http.StatusBadRequest, "At least one job is required")
		return
	}

	results, err := h.service.CreateBatch(r.Context(), payloads, h.batchMode, h.validate)
	if err != nil {
		respondDomainError(w, err, "Failed to store notification jobs")
		return
	}

	resp := batchResponse{Results: results}
	validationFailures := 0
	for _, item := range results {
		switch {
		case item.Failed():
			resp.Failed++
			if item.Status == http.StatusBadRequest {
				validationFailures++
			}
		case item.Duplicate:
			resp.Duplicate++
		default:
			resp.Created++
		}
	}

	log.Debug().
		Int("items", len(results)).
		Int("created", resp.Created).
		Int("duplicate", resp.Duplicate).
		Int("failed", resp.Failed).
		Msg("Notification job batch processed")

	status := http.StatusOK
	if validationFailures == len(results) {
		status = http.StatusBadRequest
	}
	RespondJSON(w, status, resp)
}

// GetJob handles GET /license-notification-jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseStringParam(w, r, "id", "Job ID")
	if !ok {
		return
	}

	job, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "Failed to load notification job")
		return
	}

	RespondJSON(w, http.StatusOK, job)
}

// PatchJob handles PATCH /license-notification-jobs/{id}. Keys outside
// JobPatch are ignored.
func (h *JobsHandler) PatchJob(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseStringParam(w, r, "id", "Job ID")
	if !ok {
		return
	}

	var patch models.JobPatch
	if !DecodeJSON(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		RespondError(w, http.StatusBadRequest, "No updatable fields provided")
		return
	}

	job, err := h.service.Patch(r.Context(), id, patch)
	if err != nil {
		respondDomainError(w, err, "Failed to update notification job")
		return
	}

	RespondJSON(w, http.StatusOK, job)
}
