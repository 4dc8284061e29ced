// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/models"
)

const (
	DefaultScanLimit = 100
	MaxScanLimit     = 1000
)

type ScanOptions struct {
	// IncludeGrace keeps licenses that are past due but still inside their
	// grace window.
	IncludeGrace bool
	Limit        int
	// Now overrides the scanner clock.
	Now time.Time
}

type ScanItem struct {
	*models.License
	Summary Summary `json:"summary"`
}

type ScanResult struct {
	Count int        `json:"count"`
	Items []ScanItem `json:"items"`
}

// Scanner finds past-due licenses for the dunning pipeline.
type Scanner struct {
	repo Repository
	now  func() time.Time
}

func NewScanner(repo Repository, now func() time.Time) *Scanner {
	if now == nil {
		now = time.Now
	}
	return &Scanner{repo: repo, now: now}
}

// NormalizeLimit applies the default and the upper bound.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultScanLimit
	}
	return min(limit, MaxScanLimit)
}

func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	now := opts.Now
	if now.IsZero() {
		now = s.now()
	}

	candidates, err := s.repo.ListPastDue(ctx, now, NormalizeLimit(opts.Limit))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list past due licenses")
	}

	items := make([]ScanItem, 0, len(candidates))
	for _, l := range candidates {
		summary := Summarize(l, now)
		if !opts.IncludeGrace && summary.Validity.State != StateExpired {
			continue
		}
		items = append(items, ScanItem{License: l, Summary: summary})
	}

	log.Debug().
		Int("candidates", len(candidates)).
		Int("matched", len(items)).
		Bool("includeGrace", opts.IncludeGrace).
		Msg("Overdue scan finished")

	return &ScanResult{Count: len(items), Items: items}, nil
}
