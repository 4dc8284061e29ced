// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jobs persists deduplicated dunning jobs and the delivery log.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/models"
)

// JobRepository is satisfied by *models.NotificationJobStore.
type JobRepository interface {
	Insert(ctx context.Context, job *models.NotificationJob) error
	GetByID(ctx context.Context, id string) (*models.NotificationJob, error)
	GetByHash(ctx context.Context, hash string) (*models.NotificationJob, error)
	List(ctx context.Context, filter models.JobFilter) ([]*models.NotificationJob, error)
	Patch(ctx context.Context, id string, patch models.JobPatch) (*models.NotificationJob, error)
}

// LogRepository is satisfied by *models.NotificationLogStore.
type LogRepository interface {
	Append(ctx context.Context, entry *models.NotificationLog) (*models.NotificationLog, error)
	List(ctx context.Context, filter models.NotificationLogFilter) ([]*models.NotificationLog, error)
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Service struct {
	jobs        JobRepository
	logs        LogRepository
	newID       func() string
	countryCode string
}

type Option func(*Service)

// WithCountryCode sets the calling code assumed for local phone numbers when
// fingerprinting.
func WithCountryCode(cc string) Option {
	return func(s *Service) { s.countryCode = cc }
}

func NewService(jobs JobRepository, logs LogRepository, opts ...Option) *Service {
	s := &Service{jobs: jobs, logs: logs, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UpsertResult struct {
	Job       *models.NotificationJob `json:"job"`
	Duplicate bool                    `json:"duplicate"`
}

// Upsert stores the payload unless a job with the same fingerprint exists,
// in which case the existing job is returned untouched.
func (s *Service) Upsert(ctx context.Context, p *Payload, opts ValidateOptions) (*UpsertResult, error) {
	if err := p.Validate(opts); err != nil {
		return nil, err
	}
	return s.upsert(ctx, p)
}

func (s *Service) upsert(ctx context.Context, p *Payload) (*UpsertResult, error) {
	hash := Fingerprint(p, s.countryCode)

	existing, err := s.jobs.GetByHash(ctx, hash)
	switch {
	case err == nil:
		return &UpsertResult{Job: existing, Duplicate: true}, nil
	case !errors.Is(err, models.ErrJobNotFound):
		return nil, pkgerrors.Wrap(err, "failed to look up job by hash")
	}

	job := p.toJob(s.newID(), hash)
	if err := s.jobs.Insert(ctx, job); err != nil {
		if !errors.Is(err, models.ErrDuplicateJobHash) {
			return nil, pkgerrors.Wrap(err, "failed to insert job")
		}
		// lost the race against a concurrent upsert
		existing, err := s.jobs.GetByHash(ctx, hash)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to reload duplicate job")
		}
		return &UpsertResult{Job: existing, Duplicate: true}, nil
	}

	log.Debug().
		Str("jobID", job.ID).
		Str("rucOrDni", job.RucOrDni).
		Str("severity", job.Severity).
		Msg("Notification job created")

	return &UpsertResult{Job: job, Duplicate: false}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.NotificationJob, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *Service) Find(ctx context.Context, filter models.JobFilter) ([]*models.NotificationJob, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, models.NewValidationError("status", "unknown status")
	}
	filter.Limit = normalizeLimit(filter.Limit)
	return s.jobs.List(ctx, filter)
}

// Patch applies the allow-listed changes in patch.
func (s *Service) Patch(ctx context.Context, id string, patch models.JobPatch) (*models.NotificationJob, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, models.NewValidationError("status", "must be one of pending, sent, failed")
	}
	if patch.Attempts != nil && *patch.Attempts < 0 {
		return nil, models.NewValidationError("attempts", "must not be negative")
	}
	if patch.SeverityScore != nil && *patch.SeverityScore < 0 {
		return nil, models.NewValidationError("severityScore", "must not be negative")
	}
	return s.jobs.Patch(ctx, id, patch)
}

// AppendLog records a delivered reminder.
func (s *Service) AppendLog(ctx context.Context, entry *LogEntry) (*models.NotificationLog, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	return s.logs.Append(ctx, &models.NotificationLog{
		JobID:          entry.JobID,
		RucOrDni:       entry.RucOrDni,
		LicenseIDs:     cleanIDs(entry.LicenseIDs),
		Severity:       entry.Severity,
		TotalDue:       entry.TotalDue,
		MessageLength:  entry.MessageLength,
		ConversationID: entry.ConversationID,
		Channel:        entry.Channel,
		SentAt:         entry.SentAt.UTC(),
	})
}

func (s *Service) ListLogs(ctx context.Context, filter models.NotificationLogFilter) ([]*models.NotificationLog, error) {
	filter.Limit = normalizeLimit(filter.Limit)
	return s.logs.List(ctx, filter)
}

// MarkSent flags a job as delivered at sentAt.
func (s *Service) MarkSent(ctx context.Context, id string, sentAt time.Time) (*models.NotificationJob, error) {
	status := models.JobStatusSent
	return s.jobs.Patch(ctx, id, models.JobPatch{Status: &status, SentAt: &sentAt})
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
