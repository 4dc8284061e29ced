// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package locks provides short-lived dispatch locks, in memory for a single
// process or in redis when several instances share the work.
package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/licenseops/dunning/internal/domain"
)

var ErrEmptyKey = errors.New("lock key is empty")

// Handle releases an acquired lock.
type Handle interface {
	Release(ctx context.Context) error
}

// Locker hands out non-blocking locks. TryLock reports false, without an
// error, when someone else holds key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Handle, bool, error)
}

// New builds the locker selected by cfg.LockBackend.
func New(cfg *domain.Config) (Locker, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LockBackend)) {
	case "", "memory":
		return NewMemoryLocker(), func() error { return nil }, nil
	case "redis":
		locker, err := NewRedisLocker(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return locker, locker.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock backend %q", cfg.LockBackend)
	}
}
