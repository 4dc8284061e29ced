// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "dunning:lock:"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

type RedisLocker struct {
	client *goredislib.Client
	rs     *redsync.Redsync
}

func NewRedisLocker(opts RedisOptions) (*RedisLocker, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("redis address is required")
	}

	client := goredislib.NewClient(&goredislib.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisLocker{client: client, rs: redsync.New(goredis.NewPool(client))}, nil
}

func (r *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Handle, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyKey
	}

	mutex := r.rs.NewMutex(redisKeyPrefix+key, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		if errors.Is(err, redsync.ErrFailed) || strings.Contains(err.Error(), "lock already taken") {
			log.Debug().Str("key", key).Msg("Dispatch lock already held")
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	return &redisHandle{mutex: mutex}, true, nil
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}

type redisHandle struct {
	mutex *redsync.Mutex
}

func (h *redisHandle) Release(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", h.mutex.Name(), err)
	}
	if !ok {
		log.Debug().Str("key", h.mutex.Name()).Msg("Dispatch lock expired before release")
	}
	return nil
}
