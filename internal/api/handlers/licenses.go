// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/ledger"
)

// ScanRecorder receives the size of every overdue scan.
type ScanRecorder interface {
	ObserveScan(matched int)
}

type LicensesHandler struct {
	service  *ledger.Service
	scanner  *ledger.Scanner
	recorder ScanRecorder
}

func NewLicensesHandler(service *ledger.Service, scanner *ledger.Scanner, recorder ScanRecorder) *LicensesHandler {
	return &LicensesHandler{service: service, scanner: scanner, recorder: recorder}
}

// Routes mounts the license endpoints. idRoutes are added under /{id} next
// to the license's own routes.
func (h *LicensesHandler) Routes(r chi.Router, idRoutes ...func(chi.Router)) {
	r.Get("/", h.ListLicenses)
	r.Post("/", h.CreateLicense)
	r.Get("/overdue", h.ListOverdue)
	r.Get("/verify", h.VerifyLicense)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetLicense)
		r.Put("/", h.UpdateLicense)
		r.Post("/renew", h.RenewLicense)
		r.Post("/cancel", h.CancelLicense)
		for _, fn := range idRoutes {
			fn(r)
		}
	})
}

type licenseRequest struct {
	models.License
	// Prorate derives the first partial cycle from startDate.
	Prorate bool `json:"prorate"`
}

type licenseResponse struct {
	*models.License
	Summary ledger.Summary `json:"summary"`
}

func (h *LicensesHandler) withSummary(l *models.License) licenseResponse {
	return licenseResponse{License: l, Summary: h.service.Summary(l)}
}

// ListLicenses handles GET /licenses
func (h *LicensesHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.LicenseFilter{
		Status:   models.LicenseStatus(strings.TrimSpace(q.Get("status"))),
		RucOrDni: strings.TrimSpace(q.Get("rucOrDni")),
		Domain:   strings.TrimSpace(q.Get("domain")),
		Limit:    ParseLimit(r, 500),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		RespondError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	licenses, err := h.service.Find(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err, "Failed to list licenses")
		return
	}

	RespondJSON(w, http.StatusOK, licenses)
}

// CreateLicense handles POST /licenses
func (h *LicensesHandler) CreateLicense(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), &req.License, ledger.CreateOptions{Prorate: req.Prorate})
	if err != nil {
		respondDomainError(w, err, "Failed to create license")
		return
	}

	RespondJSON(w, http.StatusCreated, h.withSummary(created))
}

// GetLicense handles GET /licenses/{id}
func (h *LicensesHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseIntParam64(w, r, "id", "license ID")
	if !ok {
		return
	}

	l, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "Failed to load license")
		return
	}

	RespondJSON(w, http.StatusOK, h.withSummary(l))
}

// UpdateLicense handles PUT /licenses/{id}
func (h *LicensesHandler) UpdateLicense(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseIntParam64(w, r, "id", "license ID")
	if !ok {
		return
	}

	var req models.License
	if !DecodeJSON(w, r, &req) {
		return
	}
	req.ID = id

	updated, err := h.service.Update(r.Context(), &req)
	if err != nil {
		respondDomainError(w, err, "Failed to update license")
		return
	}

	RespondJSON(w, http.StatusOK, h.withSummary(updated))
}

// RenewLicense handles POST /licenses/{id}/renew
func (h *LicensesHandler) RenewLicense(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseIntParam64(w, r, "id", "license ID")
	if !ok {
		return
	}

	result, err := h.service.Renew(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "Failed to renew license")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// CancelLicense handles POST /licenses/{id}/cancel
func (h *LicensesHandler) CancelLicense(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseIntParam64(w, r, "id", "license ID")
	if !ok {
		return
	}

	l, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		respondDomainError(w, err, "Failed to cancel license")
		return
	}

	log.Info().Int64("licenseID", id).Msg("License cancelled")
	RespondJSON(w, http.StatusOK, h.withSummary(l))
}

// ListOverdue handles GET /licenses/overdue?grace=&limit=
func (h *LicensesHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	result, err := h.scanner.Scan(r.Context(), ledger.ScanOptions{
		IncludeGrace: ParseBoolQuery(r, "grace"),
		Limit:        ParseLimit(r, ledger.MaxScanLimit),
	})
	if err != nil {
		respondDomainError(w, err, "Failed to scan overdue licenses")
		return
	}

	if h.recorder != nil {
		h.recorder.ObserveScan(result.Count)
	}

	RespondJSON(w, http.StatusOK, result)
}

// VerifyLicense handles GET /licenses/verify?domain=|licenseKey=
func (h *LicensesHandler) VerifyLicense(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.Verify(r.Context(), q.Get("domain"), q.Get("licenseKey"))
	if err != nil {
		respondDomainError(w, err, "Failed to verify license")
		return
	}

	RespondJSON(w, http.StatusOK, result)
}
