// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dunning renders payment reminders for a license and delivers them
// by email or through the chat platform.
package dunning

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/licenseops/dunning/internal/locks"
	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/dunning/chat"
	"github.com/licenseops/dunning/internal/services/dunning/email"
	"github.com/licenseops/dunning/internal/services/jobs"
	"github.com/licenseops/dunning/pkg/phone"
)

var (
	ErrMissingEmail       = errors.New("license has no email address")
	ErrEmailNotConfigured = errors.New("email provider is not configured")
	ErrChatNotConfigured  = errors.New("chat platform is not configured")
	ErrMissingPhone       = phone.ErrMissing
	ErrInvalidPhone       = phone.ErrInvalid
)

const (
	ChannelEmail = "email"
	ChannelChat  = "chat"

	ReasonDuplicateStage = "duplicate_stage"
	ReasonInFlight       = "in_flight"
)

// LicenseSource loads licenses. *ledger.Service satisfies it.
type LicenseSource interface {
	Get(ctx context.Context, id int64) (*models.License, error)
}

// LogAppender records delivered reminders. *jobs.Service satisfies it.
type LogAppender interface {
	AppendLog(ctx context.Context, entry *jobs.LogEntry) (*models.NotificationLog, error)
}

type EmailSender interface {
	Configured() bool
	Send(ctx context.Context, msg email.Message) (*email.SendResult, error)
}

type ContactResolver interface {
	SearchContacts(ctx context.Context, query string) ([]chat.Contact, error)
	CreateContact(ctx context.Context, in chat.ContactInput) (*chat.Contact, error)
}

type ConversationResolver interface {
	ListConversations(ctx context.Context, contactID int64) ([]chat.Conversation, error)
	CreateConversation(ctx context.Context, in chat.ConversationInput) (*chat.Conversation, error)
	UpdateConversationAttributes(ctx context.Context, conversationID int64, attrs map[string]any) error
}

type MessageSender interface {
	SendMessage(ctx context.Context, conversationID int64, content string) (*chat.Message, error)
}

// ChatPlatform bundles the chat collaborators. *chat.Client satisfies it.
type ChatPlatform interface {
	ContactResolver
	ConversationResolver
	MessageSender
	InboxID() int64
}

// Recorder observes dispatch outcomes.
type Recorder interface {
	ObserveDispatch(channel, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveDispatch(string, string) {}

type Config struct {
	DefaultCountryCode string
	PaymentURL         string
	Location           *time.Location
	LockTTL            time.Duration
	// LookupTimeout bounds a shared contact lookup.
	LookupTimeout time.Duration
}

type Dispatcher struct {
	licenses LicenseSource
	logs     LogAppender
	email    EmailSender
	chat     ChatPlatform
	locker   locks.Locker
	recorder Recorder
	cfg      Config
	now      func() time.Time

	contacts singleflight.Group
}

type Option func(*Dispatcher)

func WithEmailSender(s EmailSender) Option {
	return func(d *Dispatcher) { d.email = s }
}

func WithChatPlatform(p ChatPlatform) Option {
	return func(d *Dispatcher) { d.chat = p }
}

func WithLocker(l locks.Locker) Option {
	return func(d *Dispatcher) { d.locker = l }
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(licenses LicenseSource, logs LogAppender, cfg Config, opts ...Option) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		licenses: licenses,
		logs:     logs,
		locker:   locks.NewMemoryLocker(),
		recorder: noopRecorder{},
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}
