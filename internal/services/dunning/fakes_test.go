// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dunning

import (
	"context"
	"errors"
	"sync"

	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/dunning/chat"
	"github.com/licenseops/dunning/internal/services/dunning/email"
	"github.com/licenseops/dunning/internal/services/jobs"
)

type fakeLicenses map[int64]*models.License

func (f fakeLicenses) Get(_ context.Context, id int64) (*models.License, error) {
	l, ok := f[id]
	if !ok {
		return nil, models.ErrLicenseNotFound
	}
	cp := *l
	return &cp, nil
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []*jobs.LogEntry
}

func (f *fakeLogs) AppendLog(_ context.Context, entry *jobs.LogEntry) (*models.NotificationLog, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return &models.NotificationLog{ID: int64(len(f.entries))}, nil
}

type fakeEmail struct {
	configured bool
	err        error
	sent       []email.Message
}

func (f *fakeEmail) Configured() bool { return f.configured }

func (f *fakeEmail) Send(_ context.Context, msg email.Message) (*email.SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return &email.SendResult{ID: "mail-1"}, nil
}

type fakeChat struct {
	mu sync.Mutex

	inbox         int64
	contacts      []chat.Contact
	conversations []chat.Conversation

	createdContacts      []chat.ContactInput
	createdConversations []chat.ConversationInput
	messages             []string
	attributeUpdates     []map[string]any

	searchCalls int
	// searchStarted is signalled and searchGate awaited by each search
	// when set.
	searchStarted chan struct{}
	searchGate    chan struct{}
	sendErr       error
	updateErr   error
}

func (f *fakeChat) InboxID() int64 { return f.inbox }

func (f *fakeChat) SearchContacts(ctx context.Context, _ string) ([]chat.Contact, error) {
	f.mu.Lock()
	f.searchCalls++
	started, gate := f.searchStarted, f.searchGate
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Contact(nil), f.contacts...), nil
}

func (f *fakeChat) CreateContact(_ context.Context, in chat.ContactInput) (*chat.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdContacts = append(f.createdContacts, in)
	c := chat.Contact{ID: int64(100 + len(f.createdContacts)), Name: in.Name, PhoneNumber: in.PhoneNumber}
	f.contacts = append(f.contacts, c)
	return &c, nil
}

func (f *fakeChat) ListConversations(context.Context, int64) ([]chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Conversation(nil), f.conversations...), nil
}

func (f *fakeChat) CreateConversation(_ context.Context, in chat.ConversationInput) (*chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdConversations = append(f.createdConversations, in)
	c := chat.Conversation{ID: int64(900 + len(f.createdConversations)), InboxID: in.InboxID, Status: "open", CustomAttributes: in.CustomAttributes}
	f.conversations = append(f.conversations, c)
	return &c, nil
}

func (f *fakeChat) UpdateConversationAttributes(_ context.Context, _ int64, attrs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.attributeUpdates = append(f.attributeUpdates, attrs)
	return nil
}

func (f *fakeChat) SendMessage(_ context.Context, conversationID int64, content string) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.messages = append(f.messages, content)
	return &chat.Message{ID: int64(len(f.messages)), ConversationID: conversationID, Content: content}, nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) ObserveDispatch(channel, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[channel+":"+outcome]++
}

var errBoom = errors.New("boom")
