// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jobs

import (
	"context"
	"net/http"

	"github.com/licenseops/dunning/internal/models"
)

type BatchMode int

const (
	// BatchIndependent validates and stores each item on its own.
	BatchIndependent BatchMode = iota
	// BatchAllOrNothing rejects the whole batch if any item is invalid.
	BatchAllOrNothing
)

type BatchItemResult struct {
	Index     int                     `json:"index"`
	Job       *models.NotificationJob `json:"job,omitempty"`
	Duplicate bool                    `json:"duplicate"`
	Error     string                  `json:"error,omitempty"`
	Field     string                  `json:"field,omitempty"`
	// Status is the HTTP status the item would get on its own.
	Status int `json:"status"`
}

func (r BatchItemResult) Failed() bool {
	return r.Error != ""
}

// CreateBatch upserts payloads according to mode. Items already stored are
// never rolled back when a later item fails.
func (s *Service) CreateBatch(ctx context.Context, payloads []*Payload, mode BatchMode, opts ValidateOptions) ([]BatchItemResult, error) {
	if mode == BatchAllOrNothing {
		for i, p := range payloads {
			if err := p.Validate(opts); err != nil {
				if ve, ok := models.AsValidationError(err); ok {
					ve.Index = i
				}
				return nil, err
			}
		}
	}

	results := make([]BatchItemResult, 0, len(payloads))
	for i, p := range payloads {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		item := BatchItemResult{Index: i}
		if err := p.Validate(opts); err != nil {
			item.Error = err.Error()
			item.Status = http.StatusBadRequest
			if ve, ok := models.AsValidationError(err); ok {
				item.Field = ve.Field
				item.Error = ve.Message
			}
			results = append(results, item)
			continue
		}

		res, err := s.upsert(ctx, p)
		if err != nil {
			item.Error = err.Error()
			item.Status = http.StatusInternalServerError
			results = append(results, item)
			continue
		}

		item.Job = res.Job
		item.Duplicate = res.Duplicate
		item.Status = http.StatusCreated
		if res.Duplicate {
			item.Status = http.StatusOK
		}
		results = append(results, item)
	}

	return results, nil
}
