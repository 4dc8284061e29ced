// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/licenseops/dunning/internal/dbinterface"
)

// NotificationLog records a reminder that actually went out. Rows are never
// updated or deleted.
type NotificationLog struct {
	ID             int64               `json:"id"`
	JobID          string              `json:"jobId,omitempty"`
	RucOrDni       string              `json:"rucOrDni"`
	LicenseIDs     []string            `json:"licenseIds"`
	Severity       string              `json:"severity"`
	TotalDue       decimal.NullDecimal `json:"totalDue"`
	MessageLength  int                 `json:"messageLength"`
	ConversationID string              `json:"conversationId,omitempty"`
	Channel        string              `json:"channel,omitempty"`
	SentAt         time.Time           `json:"sentAt"`
	CreatedAt      time.Time           `json:"createdAt"`
}

type NotificationLogFilter struct {
	JobID    string
	RucOrDni string
	Limit    int
}

type NotificationLogStore struct {
	db dbinterface.Querier
}

func NewNotificationLogStore(db dbinterface.Querier) *NotificationLogStore {
	return &NotificationLogStore{db: db}
}

func (s *NotificationLogStore) Append(ctx context.Context, entry *NotificationLog) (*NotificationLog, error) {
	if entry == nil {
		return nil, errors.New("log entry is nil")
	}

	licenseIDs, err := marshalJSONColumn(nonNilStrings(entry.LicenseIDs))
	if err != nil {
		return nil, err
	}

	now := dbTime(time.Now())
	sentAt := entry.SentAt
	if sentAt.IsZero() {
		sentAt = now
	}

	query := `
		INSERT INTO license_notification_logs (
			job_id, ruc_or_dni, license_ids, severity, total_due, message_length,
			conversation_id, channel, sent_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	var id int64
	if err := s.db.QueryRowContext(ctx, query,
		nullString(entry.JobID),
		entry.RucOrDni,
		licenseIDs,
		entry.Severity,
		entry.TotalDue,
		entry.MessageLength,
		entry.ConversationID,
		entry.Channel,
		dbTime(sentAt),
		now,
	).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to append notification log: %w", err)
	}

	out := *entry
	out.ID = id
	out.LicenseIDs = nonNilStrings(entry.LicenseIDs)
	out.SentAt = dbTime(sentAt)
	out.CreatedAt = now
	return &out, nil
}

// List returns log entries, most recent send first.
func (s *NotificationLogStore) List(ctx context.Context, filter NotificationLogFilter) ([]*NotificationLog, error) {
	var (
		where []string
		args  []any
	)
	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.RucOrDni != "" {
		where = append(where, "ruc_or_dni = ?")
		args = append(args, strings.TrimSpace(filter.RucOrDni))
	}

	query := `SELECT id, COALESCE(job_id, ''), ruc_or_dni, license_ids, severity, total_due, message_length,
		conversation_id, channel, sent_at, created_at FROM license_notification_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sent_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*NotificationLog, 0)
	for rows.Next() {
		var entry NotificationLog
		var licenseIDs string
		if err := rows.Scan(
			&entry.ID,
			&entry.JobID,
			&entry.RucOrDni,
			&licenseIDs,
			&entry.Severity,
			&entry.TotalDue,
			&entry.MessageLength,
			&entry.ConversationID,
			&entry.Channel,
			&entry.SentAt,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		if err := unmarshalJSONColumn(licenseIDs, &entry.LicenseIDs); err != nil {
			return nil, err
		}
		entry.LicenseIDs = nonNilStrings(entry.LicenseIDs)
		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification logs: %w", err)
	}

	return logs, nil
}
