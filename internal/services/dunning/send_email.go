// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dunning

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/domain"
	"github.com/licenseops/dunning/internal/services/dunning/email"
	"github.com/licenseops/dunning/internal/services/jobs"
	"github.com/licenseops/dunning/internal/services/ledger"
)

type EmailResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
}

// SendEmail mails the license summary to the license's address. Provider
// failures come back as *domain.ExternalServiceError and are not retried.
func (d *Dispatcher) SendEmail(ctx context.Context, licenseID int64) (*EmailResult, error) {
	l, err := d.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	to := strings.TrimSpace(l.Email)
	if to == "" {
		d.recorder.ObserveDispatch(ChannelEmail, "invalid")
		return nil, ErrMissingEmail
	}
	if d.email == nil || !d.email.Configured() {
		d.recorder.ObserveDispatch(ChannelEmail, "error")
		return nil, ErrEmailNotConfigured
	}

	now := d.now()
	summary := ledger.Summarize(l, now)
	content, err := renderLicenseEmail(l, summary, d.cfg.PaymentURL, d.cfg.Location)
	if err != nil {
		return nil, err
	}

	res, err := d.email.Send(ctx, email.Message{
		To:      []string{to},
		Subject: content.Subject,
		Text:    content.Text,
		HTML:    content.HTML,
	})
	if err != nil {
		d.recorder.ObserveDispatch(ChannelEmail, "error")
		if ext, ok := domain.AsExternalServiceError(err); ok {
			log.Error().
				Int64("licenseID", l.ID).
				Int("status", ext.Status).
				Str("body", ext.Body).
				Msg("Email provider rejected license summary")
			return nil, ext
		}
		return nil, errors.Wrap(err, "failed to send license email")
	}

	sentAt := now.UTC()
	_, logErr := d.logs.AppendLog(ctx, &jobs.LogEntry{
		RucOrDni:      logIdentity(l.RucOrDni, l.ID),
		LicenseIDs:    jobs.IDList{strconv.FormatInt(l.ID, 10)},
		Severity:      string(summary.Validity.State),
		TotalDue:      nullDecimal(summary.TotalDue),
		MessageLength: len([]rune(content.Text)),
		Channel:       ChannelEmail,
		SentAt:        &sentAt,
	})
	if logErr != nil {
		log.Warn().Err(logErr).Int64("licenseID", l.ID).Msg("Failed to record email notification log")
	}

	d.recorder.ObserveDispatch(ChannelEmail, "sent")
	log.Info().Int64("licenseID", l.ID).Str("to", to).Msg("License summary emailed")

	out := &EmailResult{Success: true, To: to, Subject: content.Subject}
	if res != nil {
		out.MessageID = res.ID
	}
	return out, nil
}
