// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/domain"
	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/dunning"
	"github.com/licenseops/dunning/internal/services/ledger"
)

// maxBodyBytes caps request bodies; batches of jobs are the largest payloads.
const maxBodyBytes = 4 << 20

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Index   *int   `json:"index,omitempty"`
	Details string `json:"details,omitempty"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// DecodeJSON decodes the request body into dest.
// Returns false if decoding fails (error already sent to client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// DecodeJSONOptional is DecodeJSON that also accepts an empty body.
func DecodeJSONOptional[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// ParseIntParam64 extracts and validates a positive int64 URL parameter.
// Returns the value and true on success, or 0 and false if invalid (error already sent).
func ParseIntParam64(w http.ResponseWriter, r *http.Request, paramName, displayName string) (int64, bool) {
	str, ok := ParseStringParam(w, r, paramName, displayName)
	if !ok {
		return 0, false
	}
	value, err := strconv.ParseInt(str, 10, 64)
	if err != nil || value <= 0 {
		RespondError(w, http.StatusBadRequest, "Invalid "+displayName)
		return 0, false
	}
	return value, true
}

// ParseStringParam extracts a trimmed, non-empty URL parameter.
func ParseStringParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, paramName))
	if value == "" {
		RespondError(w, http.StatusBadRequest, displayName+" is required")
		return "", false
	}
	return value, true
}

// ParseLimit reads ?limit=. Missing or invalid values yield 0 so the
// service default applies; larger values are capped at maxLimit.
func ParseLimit(r *http.Request, maxLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return 0
	}
	return min(parsed, maxLimit)
}

// ParseBoolQuery accepts 1/true/yes/on, case-insensitive.
func ParseBoolQuery(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// respondDomainError maps service errors to HTTP statuses. Anything it
// does not recognise is logged and answered with 500 and fallback.
func respondDomainError(w http.ResponseWriter, err error, fallback string) {
	if ve, ok := models.AsValidationError(err); ok {
		resp := ErrorResponse{Error: strings.TrimSpace(ve.Field + " " + ve.Message), Field: ve.Field}
		if ve.Index >= 0 {
			idx := ve.Index
			resp.Index = &idx
		}
		RespondJSON(w, http.StatusBadRequest, resp)
		return
	}

	if ext, ok := domain.AsExternalServiceError(err); ok {
		log.Error().
			Str("provider", ext.Provider).
			Str("op", ext.Op).
			Int("status", ext.Status).
			Msg("Provider request failed")
		RespondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   fallback,
			Details: ext.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrLicenseNotFound):
		RespondError(w, http.StatusNotFound, "License not found")
	case errors.Is(err, models.ErrJobNotFound):
		RespondError(w, http.StatusNotFound, "Notification job not found")
	case errors.Is(err, models.ErrInvalidTransition):
		RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrLicenseConflict):
		RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrPaymentDeclined):
		RespondError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, dunning.ErrMissingEmail),
		errors.Is(err, dunning.ErrMissingPhone),
		errors.Is(err, dunning.ErrInvalidPhone):
		RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dunning.ErrEmailNotConfigured),
		errors.Is(err, dunning.ErrChatNotConfigured):
		RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Error().Err(err).Msg(fallback)
		RespondError(w, http.StatusInternalServerError, fallback)
	}
}
