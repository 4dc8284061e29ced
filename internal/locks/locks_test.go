// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package locks

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licenseops/dunning/internal/domain"
)

func exerciseLocker(t *testing.T, locker Locker) {
	t.Helper()
	ctx := t.Context()

	h, ok, err := locker.TryLock(ctx, "license:1:due_today:2024-01-05", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "license:1:due_today:2024-01-05", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	other, ok, err := locker.TryLock(ctx, "license:2:due_today:2024-01-05", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "different keys do not contend")
	require.NoError(t, other.Release(ctx))

	require.NoError(t, h.Release(ctx))

	h, ok, err = locker.TryLock(ctx, "license:1:due_today:2024-01-05", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released lock can be taken again")
	require.NoError(t, h.Release(ctx))

	_, _, err = locker.TryLock(ctx, " ", time.Minute)
	require.ErrorIs(t, err, ErrEmptyKey)
}

func TestMemoryLocker(t *testing.T) {
	t.Parallel()
	exerciseLocker(t, NewMemoryLocker())
}

func TestMemoryLockerExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	locker := NewMemoryLocker()
	locker.now = func() time.Time { return now }
	ctx := t.Context()

	stale, ok, err := locker.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	fresh, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lock is free")

	// releasing the stale handle must not drop the new holder
	require.NoError(t, stale.Release(ctx))
	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fresh.Release(ctx))
}

func TestRedisLocker(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	locker, err := NewRedisLocker(RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = locker.Close() })

	exerciseLocker(t, locker)
}

func TestRedisLockerUnreachable(t *testing.T) {
	t.Parallel()

	_, err := NewRedisLocker(RedisOptions{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	locker, closeFn, err := New(&domain.Config{LockBackend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryLocker{}, locker)
	require.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	locker, closeFn, err = New(&domain.Config{LockBackend: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisLocker{}, locker)
	require.NoError(t, closeFn())

	_, _, err = New(&domain.Config{LockBackend: "etcd"})
	require.Error(t, err)
}
