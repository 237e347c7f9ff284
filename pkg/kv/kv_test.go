// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "greeting", map[string]any{"text": "hola", "n": float64(2)}, 0))
	value, found, err := store.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, map[string]any{"text": "hola", "n": float64(2)}, value)

	require.NoError(t, store.Set(ctx, "greeting", "replaced", 0))
	value, _, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "replaced", value)

	require.NoError(t, store.Delete(ctx, "greeting"))
	require.NoError(t, store.Delete(ctx, "greeting"))
	_, found, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "session", "abc", time.Minute))
	_, found, _ := store.Get(ctx, "session")
	assert.True(t, found)

	now = now.Add(time.Minute)
	_, found, _ = store.Get(ctx, "session")
	assert.False(t, found)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr(), Prefix: "agents:"})
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)

	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Set(ctx, "ttl", true, time.Minute))
	assert.True(t, mr.Exists("agents:ttl"))
	mr.FastForward(2 * time.Minute)
	_, found, err := store.Get(ctx, "ttl")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreConnectError(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}
