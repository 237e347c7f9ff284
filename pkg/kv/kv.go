// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package kv provides the key/value persistence used by the kv-get and
// kv-set workflow steps. Values are JSON-like and stored JSON-encoded.
package kv

import (
	"context"
	"sync"
	"time"
)

// Store persists JSON-like values by key.
type Store interface {
	// Get returns the value for key. found is false when the key does not
	// exist or has expired.
	Get(ctx context.Context, key string) (value any, found bool, err error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

type item struct {
	value     any
	expiresAt time.Time
}

// MemoryStore is an in-process Store with lazy expiry.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]item), now: time.Now}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !it.expiresAt.IsZero() && !m.now().Before(it.expiresAt) {
		delete(m.items, key)
		return nil, false, nil
	}
	return it.value, true, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := item{value: value}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = it
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
