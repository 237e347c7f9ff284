// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the agent documents a host application serves.
// A Registry is an explicit instance; tests and hosts create their own.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/errors"
)

type entry struct {
	raw     []byte
	summary agentdef.Summary
}

// Registry maps agent ids to raw YAML documents. Registered documents take
// precedence over the optional fallback Source.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	source  agentdef.Source
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithSource sets the fallback source used for ids that were not registered.
func WithSource(src agentdef.Source) Option {
	return func(r *Registry) {
		r.source = src
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates raw as an agent document and stores it under its
// agent id, replacing any previous document with the same id.
func (r *Registry) Register(raw []byte) (*agentdef.Definition, error) {
	def, err := agentdef.Parse(raw)
	if err != nil {
		return nil, err
	}
	stored := make([]byte, len(raw))
	copy(stored, raw)

	r.mu.Lock()
	r.entries[def.ID()] = entry{raw: stored, summary: def.Summary()}
	r.mu.Unlock()
	r.logger.Debug("agent registered", slog.String("agent", def.ID()))
	return def, nil
}

// Get returns the registered document for id.
func (r *Registry) Get(id string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.raw, true
}

// Remove drops id from the registry and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// Clear removes every registered document.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]entry)
	r.mu.Unlock()
}

// Len returns the number of registered documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Resolve returns the document for id, consulting the fallback source when
// id was not registered.
func (r *Registry) Resolve(ctx context.Context, id string) ([]byte, error) {
	if raw, ok := r.Get(id); ok {
		return raw, nil
	}
	if r.source == nil {
		return nil, errors.Newf(errors.CodeNotFound, "agent %q not found", id).WithContext("agent", id)
	}
	return r.source.Load(ctx, id)
}

// Preload registers every document the fallback source can list. Documents
// that fail to parse are skipped and logged.
func (r *Registry) Preload(ctx context.Context) (int, error) {
	lister, ok := r.source.(agentdef.Lister)
	if !ok {
		return 0, nil
	}
	ids, err := lister.List(ctx)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, id := range ids {
		raw, err := r.source.Load(ctx, id)
		if err != nil {
			return loaded, err
		}
		if _, err := r.Register(raw); err != nil {
			r.logger.Warn("skipping invalid agent document",
				slog.String("agent", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// List returns summaries of the registered documents sorted by id.
func (r *Registry) List() []agentdef.Summary {
	r.mu.RLock()
	out := make([]agentdef.Summary, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.summary)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
