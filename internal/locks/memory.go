// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package locks

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	token     uint64
	expiresAt time.Time
}

type MemoryLocker struct {
	mu      sync.Mutex
	held    map[string]memoryEntry
	counter uint64
	now     func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (Handle, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if entry, ok := m.held[key]; ok && now.Before(entry.expiresAt) {
		return nil, false, nil
	}

	m.counter++
	m.held[key] = memoryEntry{token: m.counter, expiresAt: now.Add(ttl)}

	// prune expired entries so the map stays small
	for k, entry := range m.held {
		if !now.Before(entry.expiresAt) {
			delete(m.held, k)
		}
	}

	return &memoryHandle{locker: m, key: key, token: m.counter}, true, nil
}

type memoryHandle struct {
	locker *MemoryLocker
	key    string
	token  uint64
}

// Release is a no-op when the lock already expired and was taken by someone else.
func (h *memoryHandle) Release(context.Context) error {
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()

	if entry, ok := h.locker.held[h.key]; ok && entry.token == h.token {
		delete(h.locker.held, h.key)
	}
	return nil
}
