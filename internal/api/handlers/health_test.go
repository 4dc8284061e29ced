// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealthHandler_Integration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		db         Pinger
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "health", path: "/health", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "liveness", path: "/health/liveness", wantStatus: http.StatusOK, wantBody: "alive"},
		{name: "readiness without db", path: "/health/readiness", wantStatus: http.StatusOK, wantBody: "ready"},
		{name: "readiness with db", db: stubPinger{}, path: "/health/readiness", wantStatus: http.StatusOK, wantBody: "ready"},
		{name: "readiness db down", db: stubPinger{err: errors.New("closed")}, path: "/health/readiness", wantStatus: http.StatusServiceUnavailable, wantBody: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := chi.NewRouter()
			r.Route("/health", NewHealthHandler(tt.db).Routes)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantBody, resp["status"])
		})
	}
}
