// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const DefaultSharedSecretHeader = "X-Dunning-Secret"

// GuardResult is the outcome of checking one request. Body is written as
// JSON when OK is false.
type GuardResult struct {
	OK     bool
	Status int
	Body   map[string]string
}

// SharedSecretGuard protects machine-to-machine endpoints with a single
// pre-shared secret. A guard without a secret rejects everything with 503.
type SharedSecretGuard struct {
	secret []byte
	header string
}

func NewSharedSecretGuard(secret, header string) *SharedSecretGuard {
	header = strings.TrimSpace(header)
	if header == "" {
		header = DefaultSharedSecretHeader
	}
	return &SharedSecretGuard{
		secret: []byte(strings.TrimSpace(secret)),
		header: header,
	}
}

func (g *SharedSecretGuard) Check(r *http.Request) GuardResult {
	if len(g.secret) == 0 {
		return GuardResult{
			Status: http.StatusServiceUnavailable,
			Body:   map[string]string{"error": "Shared secret is not configured"},
		}
	}

	provided := presentedSecret(r, g.header)
	if provided == "" {
		return GuardResult{
			Status: http.StatusUnauthorized,
			Body:   map[string]string{"error": "Missing shared secret"},
		}
	}

	if subtle.ConstantTimeCompare([]byte(provided), g.secret) != 1 {
		return GuardResult{
			Status: http.StatusForbidden,
			Body:   map[string]string{"error": "Invalid shared secret"},
		}
	}

	return GuardResult{OK: true, Status: http.StatusOK}
}

// Middleware stops the chain before any handler runs when Check fails.
func (g *SharedSecretGuard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := g.Check(r)
			if !res.OK {
				log.Debug().
					Int("status", res.Status).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Rejected request at shared secret guard")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(res.Status)
				if err := json.NewEncoder(w).Encode(res.Body); err != nil {
					log.Error().Err(err).Msg("Failed to encode guard response")
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedSecret(r *http.Request, header string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
