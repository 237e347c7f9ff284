// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records the lifecycle of agent interpretations and their
// workflow steps.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Status values recorded for steps and interpretations.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// KindAgent marks interpretation-level events; step events carry the step type.
const KindAgent = "agent"

// Event is one audit record. Step is empty for interpretation-level events.
type Event struct {
	AgentID    string    `json:"agent_id"`
	RunID      string    `json:"run_id"`
	Step       string    `json:"step,omitempty"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Output     any       `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Store persists audit events.
type Store interface {
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// Filter limits audit event queries.
type Filter struct {
	AgentID string
	RunID   string
	Step    string
	Status  string
	Limit   int
}

func (f Filter) match(ev Event) bool {
	if f.AgentID != "" && ev.AgentID != f.AgentID {
		return false
	}
	if f.RunID != "" && ev.RunID != f.RunID {
		return false
	}
	if f.Step != "" && ev.Step != f.Step {
		return false
	}
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	return true
}

// MemoryStore keeps audit events in memory.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryStore returns an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an audit event.
func (s *MemoryStore) Record(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns filtered audit events in recording order.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if !filter.match(ev) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Nop discards every event.
type Nop struct{}

// Record implements Store.
func (Nop) Record(context.Context, Event) error { return nil }

// List implements Store.
func (Nop) List(context.Context, Filter) ([]Event, error) { return nil, nil }

func encodeOutput(output any) ([]byte, error) {
	if output == nil {
		return []byte("null"), nil
	}
	return json.Marshal(output)
}

func decodeOutput(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func utc(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
