// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/licenseops/dunning/internal/dbinterface"
)

var (
	ErrJobNotFound = errors.New("notification job not found")

	// ErrDuplicateJobHash is returned by Insert when another job already owns the fingerprint.
	ErrDuplicateJobHash = errors.New("notification job hash already exists")
)

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusSent    JobStatus = "sent"
	JobStatusFailed  JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusSent || s == JobStatusFailed
}

// JobLicenseLine is one license line item inside a reminder.
type JobLicenseLine struct {
	LicenseID string          `json:"licenseId"`
	Service   string          `json:"service,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	LateFee   decimal.Decimal `json:"lateFee"`
	Total     decimal.Decimal `json:"total"`
	EndDate   *time.Time      `json:"endDate,omitempty"`
}

// NotificationJob is a deduplicated dunning reminder awaiting delivery.
type NotificationJob struct {
	ID            string              `json:"id"`
	Hash          string              `json:"hash"`
	RucOrDni      string              `json:"rucOrDni"`
	CompanyName   string              `json:"companyName"`
	PhoneNumber   string              `json:"phoneNumber,omitempty"`
	Email         string              `json:"email,omitempty"`
	LicenseIDs    []string            `json:"licenseIds"`
	Licenses      []JobLicenseLine    `json:"licenses"`
	Severity      string              `json:"severity"`
	SeverityScore int                 `json:"severityScore"`
	TotalBase     decimal.NullDecimal `json:"totalBase"`
	TotalLate     decimal.NullDecimal `json:"totalLate"`
	TotalDue      decimal.NullDecimal `json:"totalDue"`
	Message       string              `json:"message"`
	Channel       string              `json:"channel,omitempty"`
	Origin        string              `json:"origin,omitempty"`
	ScheduledAt   *time.Time          `json:"scheduledAt,omitempty"`
	Status        JobStatus           `json:"status"`
	Attempts      int                 `json:"attempts"`
	SentAt        *time.Time          `json:"sentAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

type JobFilter struct {
	Status   JobStatus
	RucOrDni string
	Limit    int
}

// JobPatch lists the only fields a job may change after creation.
type JobPatch struct {
	Status        *JobStatus `json:"status,omitempty"`
	Attempts      *int       `json:"attempts,omitempty"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
	Message       *string    `json:"message,omitempty"`
	Channel       *string    `json:"channel,omitempty"`
	Severity      *string    `json:"severity,omitempty"`
	SeverityScore *int       `json:"severityScore,omitempty"`
}

func (p JobPatch) IsEmpty() bool {
	return p.Status == nil && p.Attempts == nil && p.SentAt == nil && p.ScheduledAt == nil &&
		p.Message == nil && p.Channel == nil && p.Severity == nil && p.SeverityScore == nil
}

type NotificationJobStore struct {
	db dbinterface.Querier
}

func NewNotificationJobStore(db dbinterface.Querier) *NotificationJobStore {
	return &NotificationJobStore{db: db}
}

const jobColumns = `id, hash, ruc_or_dni, company_name, phone_number, email, license_ids, licenses,
	severity, severity_score, total_base, total_late, total_due, message, channel, origin,
	scheduled_at, status, attempts, sent_at, created_at, updated_at`

// Insert stores a new job. A fingerprint collision yields ErrDuplicateJobHash.
func (s *NotificationJobStore) Insert(ctx context.Context, job *NotificationJob) error {
	licenseIDs, err := marshalJSONColumn(nonNilStrings(job.LicenseIDs))
	if err != nil {
		return err
	}
	lines := job.Licenses
	if lines == nil {
		lines = []JobLicenseLine{}
	}
	licenses, err := marshalJSONColumn(lines)
	if err != nil {
		return err
	}

	now := dbTime(time.Now())
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
		INSERT INTO license_notification_jobs (
			id, hash, ruc_or_dni, company_name, phone_number, email, license_ids, licenses,
			severity, severity_score, total_base, total_late, total_due, message, channel, origin,
			scheduled_at, status, attempts, sent_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Hash,
		job.RucOrDni,
		job.CompanyName,
		job.PhoneNumber,
		job.Email,
		licenseIDs,
		licenses,
		job.Severity,
		job.SeverityScore,
		job.TotalBase,
		job.TotalLate,
		job.TotalDue,
		job.Message,
		job.Channel,
		job.Origin,
		nullTime(job.ScheduledAt),
		string(job.Status),
		job.Attempts,
		nullTime(job.SentAt),
		now,
		now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateJobHash
		}
		return fmt.Errorf("failed to insert notification job: %w", err)
	}

	return nil
}

func (s *NotificationJobStore) GetByID(ctx context.Context, id string) (*NotificationJob, error) {
	return s.getOne(ctx, "id = ?", id)
}

func (s *NotificationJobStore) GetByHash(ctx context.Context, hash string) (*NotificationJob, error) {
	return s.getOne(ctx, "hash = ?", hash)
}

func (s *NotificationJobStore) getOne(ctx context.Context, where string, arg any) (*NotificationJob, error) {
	query := "SELECT " + jobColumns + " FROM license_notification_jobs WHERE " + where

	job, err := scanNotificationJob(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first.
func (s *NotificationJobStore) List(ctx context.Context, filter JobFilter) ([]*NotificationJob, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RucOrDni != "" {
		where = append(where, "ruc_or_dni = ?")
		args = append(args, strings.TrimSpace(filter.RucOrDni))
	}

	query := "SELECT " + jobColumns + " FROM license_notification_jobs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*NotificationJob, 0)
	for rows.Next() {
		job, err := scanNotificationJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification jobs: %w", err)
	}

	return jobs, nil
}

// Patch applies the non-nil fields of patch and returns the updated job.
func (s *NotificationJobStore) Patch(ctx context.Context, id string, patch JobPatch) (*NotificationJob, error) {
	var (
		sets []string
		args []any
	)
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Attempts != nil {
		sets = append(sets, "attempts = ?")
		args = append(args, *patch.Attempts)
	}
	if patch.SentAt != nil {
		sets = append(sets, "sent_at = ?")
		args = append(args, nullTime(patch.SentAt))
	}
	if patch.ScheduledAt != nil {
		sets = append(sets, "scheduled_at = ?")
		args = append(args, nullTime(patch.ScheduledAt))
	}
	if patch.Message != nil {
		sets = append(sets, "message = ?")
		args = append(args, *patch.Message)
	}
	if patch.Channel != nil {
		sets = append(sets, "channel = ?")
		args = append(args, *patch.Channel)
	}
	if patch.Severity != nil {
		sets = append(sets, "severity = ?")
		args = append(args, *patch.Severity)
	}
	if patch.SeverityScore != nil {
		sets = append(sets, "severity_score = ?")
		args = append(args, *patch.SeverityScore)
	}

	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, dbTime(time.Now()), id)

	query := "UPDATE license_notification_jobs SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to patch notification job: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, ErrJobNotFound
	}

	return s.GetByID(ctx, id)
}

// CountByStatus is used by the metrics collector.
func (s *NotificationJobStore) CountByStatus(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM license_notification_jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count notification jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[JobStatus(status)] = count
	}

	return counts, rows.Err()
}

func scanNotificationJob(scanner interface{ Scan(dest ...any) error }) (*NotificationJob, error) {
	var (
		job         NotificationJob
		licenseIDs  string
		licenses    string
		status      string
		scheduledAt sql.NullTime
		sentAt      sql.NullTime
	)

	if err := scanner.Scan(
		&job.ID,
		&job.Hash,
		&job.RucOrDni,
		&job.CompanyName,
		&job.PhoneNumber,
		&job.Email,
		&licenseIDs,
		&licenses,
		&job.Severity,
		&job.SeverityScore,
		&job.TotalBase,
		&job.TotalLate,
		&job.TotalDue,
		&job.Message,
		&job.Channel,
		&job.Origin,
		&scheduledAt,
		&status,
		&job.Attempts,
		&sentAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := unmarshalJSONColumn(licenseIDs, &job.LicenseIDs); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(licenses, &job.Licenses); err != nil {
		return nil, err
	}
	job.LicenseIDs = nonNilStrings(job.LicenseIDs)
	if job.Licenses == nil {
		job.Licenses = []JobLicenseLine{}
	}
	job.Status = JobStatus(status)
	job.ScheduledAt = timePtr(scheduledAt)
	job.SentAt = timePtr(sentAt)

	return &job, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
