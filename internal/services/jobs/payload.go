// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/licenseops/dunning/internal/models"
)

// IDList decodes license ids sent either as strings or as numbers.
type IDList []string

func (l *IDList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("licenseIds must be an array: %w", err)
	}

	out := make(IDList, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return fmt.Errorf("licenseIds entries must be strings or numbers")
		}
		out = append(out, n.String())
	}

	*l = out
	return nil
}

// Payload is the body accepted when creating a notification job.
type Payload struct {
	RucOrDni      string                  `json:"rucOrDni"`
	CompanyName   string                  `json:"companyName"`
	PhoneNumber   string                  `json:"phoneNumber,omitempty"`
	Email         string                  `json:"email,omitempty"`
	LicenseIDs    IDList                  `json:"licenseIds"`
	Licenses      []models.JobLicenseLine `json:"licenses,omitempty"`
	Severity      string                  `json:"severity"`
	SeverityScore int                     `json:"severityScore"`
	TotalBase     decimal.NullDecimal     `json:"totalBase"`
	TotalLate     decimal.NullDecimal     `json:"totalLate"`
	TotalDue      decimal.NullDecimal     `json:"totalDue"`
	Message       string                  `json:"message"`
	Channel       string                  `json:"channel,omitempty"`
	Origin        string                  `json:"origin,omitempty"`
	ScheduledAt   *time.Time              `json:"scheduledAt,omitempty"`
}

type ValidateOptions struct {
	RequireSeverity bool
}

// Validate checks the required fields of a single payload.
func (p *Payload) Validate(opts ValidateOptions) error {
	if p == nil {
		return models.NewValidationError("body", "is required")
	}
	if strings.TrimSpace(p.RucOrDni) == "" {
		return models.NewValidationError("rucOrDni", "is required")
	}
	if len(cleanIDs(p.LicenseIDs)) == 0 {
		return models.NewValidationError("licenseIds", "must contain at least one id")
	}
	if strings.TrimSpace(p.Message) == "" {
		return models.NewValidationError("message", "is required")
	}
	if opts.RequireSeverity && strings.TrimSpace(p.Severity) == "" {
		return models.NewValidationError("severity", "is required")
	}
	return nil
}

func (p *Payload) toJob(id, hash string) *models.NotificationJob {
	return &models.NotificationJob{
		ID:            id,
		Hash:          hash,
		RucOrDni:      strings.TrimSpace(p.RucOrDni),
		CompanyName:   strings.TrimSpace(p.CompanyName),
		PhoneNumber:   strings.TrimSpace(p.PhoneNumber),
		Email:         strings.TrimSpace(p.Email),
		LicenseIDs:    cleanIDs(p.LicenseIDs),
		Licenses:      p.Licenses,
		Severity:      strings.TrimSpace(p.Severity),
		SeverityScore: p.SeverityScore,
		TotalBase:     p.TotalBase,
		TotalLate:     p.TotalLate,
		TotalDue:      p.TotalDue,
		Message:       p.Message,
		Channel:       strings.TrimSpace(p.Channel),
		Origin:        strings.TrimSpace(p.Origin),
		ScheduledAt:   p.ScheduledAt,
		Status:        models.JobStatusPending,
	}
}

// cleanIDs trims ids and drops blanks, preserving order.
func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// LogEntry is the body accepted when recording a sent reminder.
type LogEntry struct {
	JobID          string              `json:"jobId,omitempty"`
	RucOrDni       string              `json:"rucOrDni"`
	LicenseIDs     IDList              `json:"licenseIds"`
	Severity       string              `json:"severity"`
	TotalDue       decimal.NullDecimal `json:"totalDue"`
	MessageLength  int                 `json:"messageLength"`
	ConversationID string              `json:"conversationId,omitempty"`
	Channel        string              `json:"channel,omitempty"`
	SentAt         *time.Time          `json:"sentAt"`
}

func (e *LogEntry) Validate() error {
	if e == nil {
		return models.NewValidationError("body", "is required")
	}
	if strings.TrimSpace(e.RucOrDni) == "" {
		return models.NewValidationError("rucOrDni", "is required")
	}
	if len(cleanIDs(e.LicenseIDs)) == 0 {
		return models.NewValidationError("licenseIds", "must contain at least one id")
	}
	if strings.TrimSpace(e.Severity) == "" {
		return models.NewValidationError("severity", "is required")
	}
	if !e.TotalDue.Valid {
		return models.NewValidationError("totalDue", "is required")
	}
	if e.SentAt == nil || e.SentAt.IsZero() {
		return models.NewValidationError("sentAt", "is required")
	}
	if e.MessageLength < 0 {
		return models.NewValidationError("messageLength", "must not be negative")
	}
	return nil
}
