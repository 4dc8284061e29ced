// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dunning

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/dunning/chat"
	"github.com/licenseops/dunning/internal/services/jobs"
	"github.com/licenseops/dunning/internal/services/ledger"
	"github.com/licenseops/dunning/pkg/phone"
)

const conversationResolved = "resolved"

// Conversation attribute keys.
const (
	attrLicenseID          = "licenseId"
	attrLicenseKey         = "licenseKey"
	attrReminderStage      = "reminderStage"
	attrReminderDate       = "reminderDate"
	attrLastReminderStage  = "lastReminderStage"
	attrLastReminderDate   = "lastReminderDate"
	attrConversationReused = "conversationReused"
)

type ChatOptions struct {
	// Stage defaults to the stage inferred from the license due date.
	Stage string `json:"stage,omitempty"`
	// ReminderDate defaults to today, formatted 2006-01-02.
	ReminderDate    string `json:"reminderDate,omitempty"`
	SkipIfDuplicate *bool  `json:"skipIfDuplicate,omitempty"`
	CustomIntro     string `json:"customIntro,omitempty"`
	CustomOutro     string `json:"customOutro,omitempty"`
	ManualMessage   string `json:"manualMessage,omitempty"`
	JobID           string `json:"jobId,omitempty"`
}

func (o ChatOptions) skipIfDuplicate() bool {
	return o.SkipIfDuplicate == nil || *o.SkipIfDuplicate
}

type ChatResult struct {
	Success            bool   `json:"success"`
	Skipped            bool   `json:"skipped"`
	Reason             string `json:"reason,omitempty"`
	Phone              string `json:"phone,omitempty"`
	ContactID          int64  `json:"contactId,omitempty"`
	ConversationID     int64  `json:"conversationId,omitempty"`
	ConversationReused bool   `json:"conversationReused"`
	MessageID          int64  `json:"messageId,omitempty"`
	Stage              string `json:"stage"`
	ReminderDate       string `json:"reminderDate"`
	Message            string `json:"message,omitempty"`
}

// SendChat delivers a stage reminder for the license over the chat platform,
// reusing an open conversation when one exists. A reminder already sent for
// the same stage and date is skipped.
func (d *Dispatcher) SendChat(ctx context.Context, licenseID int64, opts ChatOptions) (*ChatResult, error) {
	l, err := d.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, err
	}
	if d.chat == nil {
		d.recorder.ObserveDispatch(ChannelChat, "error")
		return nil, ErrChatNotConfigured
	}

	number, err := phone.Normalize(l.PhoneNumber, d.cfg.DefaultCountryCode)
	if err != nil {
		d.recorder.ObserveDispatch(ChannelChat, "invalid")
		return nil, err
	}

	now := d.now()
	stage := strings.TrimSpace(opts.Stage)
	if stage == "" {
		stage = InferStage(l, now, d.cfg.Location)
	} else if !ValidStage(stage) {
		return nil, models.NewValidationError("stage", fmt.Sprintf("unknown reminder stage %q", stage))
	}
	reminderDate := strings.TrimSpace(opts.ReminderDate)
	if reminderDate == "" {
		reminderDate = ReminderDate(now, d.cfg.Location)
	} else if _, err := time.Parse(dateLayout, reminderDate); err != nil {
		return nil, models.NewValidationError("reminderDate", "must be formatted YYYY-MM-DD")
	}

	result := &ChatResult{Phone: number, Stage: stage, ReminderDate: reminderDate}

	lockKey := fmt.Sprintf("license:%d:%s:%s", l.ID, stage, reminderDate)
	handle, ok, err := d.locker.TryLock(ctx, lockKey, d.cfg.LockTTL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire dispatch lock")
	}
	if !ok {
		result.Skipped = true
		result.Reason = ReasonInFlight
		d.recorder.ObserveDispatch(ChannelChat, "skipped")
		return result, nil
	}
	defer func() {
		if err := handle.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("key", lockKey).Msg("Failed to release dispatch lock")
		}
	}()

	contact, err := d.resolveContact(ctx, number, l)
	if err != nil {
		d.recorder.ObserveDispatch(ChannelChat, "error")
		return nil, err
	}
	result.ContactID = contact.ID

	conv, err := d.findConversation(ctx, contact.ID, l.ID)
	if err != nil {
		d.recorder.ObserveDispatch(ChannelChat, "error")
		return nil, err
	}

	if conv != nil {
		result.ConversationReused = true
		lastStage := conv.Attribute(attrLastReminderStage)
		if lastStage == "" {
			lastStage = conv.Attribute(attrReminderStage)
		}
		lastDate := conv.Attribute(attrLastReminderDate)
		if lastDate == "" {
			lastDate = conv.Attribute(attrReminderDate)
		}

		if opts.skipIfDuplicate() && sameLicense(conv, l.ID) && lastStage == stage && lastDate == reminderDate {
			result.ConversationID = conv.ID
			result.Skipped = true
			result.Reason = ReasonDuplicateStage
			d.recorder.ObserveDispatch(ChannelChat, "skipped")
			log.Info().
				Int64("licenseID", l.ID).
				Int64("conversationID", conv.ID).
				Str("stage", stage).
				Str("date", reminderDate).
				Msg("Reminder already sent for this stage, skipping")
			return result, nil
		}
	} else {
		conv, err = d.chat.CreateConversation(ctx, chat.ConversationInput{
			ContactID: contact.ID,
			InboxID:   d.chat.InboxID(),
			CustomAttributes: map[string]any{
				attrLicenseID:     strconv.FormatInt(l.ID, 10),
				attrLicenseKey:    l.LicenseKey,
				attrReminderStage: stage,
				attrReminderDate:  reminderDate,
			},
		})
		if err != nil {
			d.recorder.ObserveDispatch(ChannelChat, "error")
			return nil, err
		}
	}
	result.ConversationID = conv.ID

	summary := ledger.Summarize(l, now)
	content := strings.TrimSpace(opts.ManualMessage)
	if content == "" {
		content = renderChatMessage(chatTemplate{
			License:     l,
			Summary:     summary,
			Stage:       stage,
			CustomIntro: opts.CustomIntro,
			CustomOutro: opts.CustomOutro,
			PaymentURL:  d.cfg.PaymentURL,
			Location:    d.cfg.Location,
		})
	}

	msg, err := d.chat.SendMessage(ctx, conv.ID, content)
	if err != nil {
		d.recorder.ObserveDispatch(ChannelChat, "error")
		return nil, err
	}
	result.MessageID = msg.ID
	result.Message = content
	result.Success = true

	if err := d.chat.UpdateConversationAttributes(ctx, conv.ID, map[string]any{
		attrLastReminderStage:  stage,
		attrLastReminderDate:   reminderDate,
		attrConversationReused: result.ConversationReused,
	}); err != nil {
		log.Warn().Err(err).Int64("conversationID", conv.ID).Msg("Failed to update conversation attributes")
	}

	sentAt := now.UTC()
	if _, err := d.logs.AppendLog(ctx, &jobs.LogEntry{
		JobID:          opts.JobID,
		RucOrDni:       logIdentity(l.RucOrDni, l.ID),
		LicenseIDs:     jobs.IDList{strconv.FormatInt(l.ID, 10)},
		Severity:       stage,
		TotalDue:       nullDecimal(summary.TotalDue),
		MessageLength:  len([]rune(content)),
		ConversationID: strconv.FormatInt(conv.ID, 10),
		Channel:        ChannelChat,
		SentAt:         &sentAt,
	}); err != nil {
		log.Warn().Err(err).Int64("licenseID", l.ID).Msg("Failed to record chat notification log")
	}

	d.recorder.ObserveDispatch(ChannelChat, "sent")
	log.Info().
		Int64("licenseID", l.ID).
		Int64("conversationID", conv.ID).
		Bool("reused", result.ConversationReused).
		Str("stage", stage).
		Msg("Chat reminder sent")

	return result, nil
}

// resolveContact finds the contact for number or creates it. Concurrent
// calls for one number share a single lookup that outlives any one caller's
// cancellation.
func (d *Dispatcher) resolveContact(ctx context.Context, number string, l *models.License) (*chat.Contact, error) {
	ch := d.contacts.DoChan(number, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.LookupTimeout)
		defer cancel()
		return d.lookupContact(lookupCtx, number, l)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*chat.Contact), nil
	}
}

func (d *Dispatcher) lookupContact(ctx context.Context, number string, l *models.License) (*chat.Contact, error) {
	contacts, err := d.chat.SearchContacts(ctx, number)
	if err != nil {
		return nil, err
	}

	if len(contacts) > 0 {
		for i := range contacts {
			if samePhone(contacts[i].PhoneNumber, number) {
				return &contacts[i], nil
			}
		}
		return &contacts[0], nil
	}

	created, err := d.chat.CreateContact(ctx, chat.ContactInput{
		InboxID:     d.chat.InboxID(),
		Name:        l.CompanyName,
		PhoneNumber: number,
		Email:       l.Email,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Int64("contactID", created.ID).Msg("Chat contact created")
	return created, nil
}

// findConversation returns the open conversation on the configured inbox,
// preferring one tagged with the license. It returns nil when none is open.
func (d *Dispatcher) findConversation(ctx context.Context, contactID, licenseID int64) (*chat.Conversation, error) {
	convs, err := d.chat.ListConversations(ctx, contactID)
	if err != nil {
		return nil, err
	}

	inbox := d.chat.InboxID()
	want := strconv.FormatInt(licenseID, 10)

	var fallback *chat.Conversation
	for i := range convs {
		c := &convs[i]
		if c.InboxID != inbox || strings.EqualFold(c.Status, conversationResolved) {
			continue
		}
		if c.Attribute(attrLicenseID) == want {
			return c, nil
		}
		if fallback == nil {
			fallback = c
		}
	}
	return fallback, nil
}

// sameLicense reports whether the conversation's reminder stamps belong to
// licenseID. Untagged conversations count as the license's own.
func sameLicense(c *chat.Conversation, licenseID int64) bool {
	tag := c.Attribute(attrLicenseID)
	return tag == "" || tag == strconv.FormatInt(licenseID, 10)
}

func samePhone(a, b string) bool {
	da, db := phone.Digits(a), phone.Digits(b)
	return da != "" && da == db
}

func logIdentity(rucOrDni string, licenseID int64) string {
	if v := strings.TrimSpace(rucOrDni); v != "" {
		return v
	}
	return "license-" + strconv.FormatInt(licenseID, 10)
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}
