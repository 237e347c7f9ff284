// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrNotFound indicates a collection does not exist.
var ErrNotFound = errors.New("memory: not found")

type collection struct {
	size   uint64
	points map[string]Point
}

// InMemoryStore is a VectorStore kept in process memory. Search is a linear
// cosine similarity scan.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string]*collection)}
}

// CreateCollection implements VectorStore.
func (s *InMemoryStore) CreateCollection(_ context.Context, name string, vectorSize uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.collections[name]; ok {
		if existing.size != vectorSize {
			return fmt.Errorf("memory: collection %q has vector size %d, not %d", name, existing.size, vectorSize)
		}
		return nil
	}
	s.collections[name] = &collection{size: vectorSize, points: make(map[string]Point)}
	return nil
}

// Upsert implements VectorStore.
func (s *InMemoryStore) Upsert(_ context.Context, name string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: collection %q", ErrNotFound, name)
	}
	for _, p := range points {
		if uint64(len(p.Vector)) != c.size {
			return fmt.Errorf("memory: point %q has %d dimensions, collection %q expects %d", p.ID, len(p.Vector), name, c.size)
		}
		c.points[p.ID] = p
	}
	return nil
}

// Search implements VectorStore.
func (s *InMemoryStore) Search(_ context.Context, name string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", ErrNotFound, name)
	}

	results := make([]SearchResult, 0, len(c.points))
	for _, p := range c.points {
		score := cosine(vector, p.Vector)
		if score < scoreThreshold {
			continue
		}
		results = append(results, SearchResult{ID: p.ID, Score: score, Point: p})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Len returns the number of points in a collection.
func (s *InMemoryStore) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.points)
	}
	return 0
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ VectorStore = (*InMemoryStore)(nil)
