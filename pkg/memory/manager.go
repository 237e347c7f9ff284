// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TextKey is the payload key holding the indexed text.
const TextKey = "text"

// Index pairs an embedder with a vector store so text can be stored and
// queried directly. Collections are created lazily with the dimension of
// the first embedding.
type Index struct {
	store    VectorStore
	embedder Embedder
	ensured  sync.Map
}

// NewIndex creates an Index.
func NewIndex(store VectorStore, embedder Embedder) *Index {
	return &Index{store: store, embedder: embedder}
}

// Add embeds text and upserts it under id. An empty id gets a random UUID.
// It returns the id the point was stored under.
func (ix *Index) Add(ctx context.Context, collection, id, text string, metadata map[string]any) (string, error) {
	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return "", err
	}
	if err := ix.ensure(ctx, collection, len(vec)); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[TextKey] = text

	err = ix.store.Upsert(ctx, collection, []Point{{
		ID:        id,
		Vector:    vec,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Query embeds query and returns the nearest points.
func (ix *Index) Query(ctx context.Context, collection, query string, limit int, threshold float32) ([]SearchResult, error) {
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := ix.ensure(ctx, collection, len(vec)); err != nil {
		return nil, err
	}
	return ix.store.Search(ctx, collection, vec, limit, threshold)
}

func (ix *Index) ensure(ctx context.Context, collection string, dim int) error {
	if dim == 0 {
		return fmt.Errorf("memory: embedder returned an empty vector")
	}
	if _, ok := ix.ensured.Load(collection); ok {
		return nil
	}
	if err := ix.store.CreateCollection(ctx, collection, uint64(dim)); err != nil {
		return err
	}
	ix.ensured.Store(collection, struct{}{})
	return nil
}
