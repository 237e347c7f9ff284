// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
)

func TestInMemoryStoreSearch(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	if err := store.CreateCollection(ctx, "docs", 2); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}
	if err := store.CreateCollection(ctx, "docs", 2); err != nil {
		t.Fatalf("create should be idempotent: %v", err)
	}
	if err := store.CreateCollection(ctx, "docs", 3); err == nil {
		t.Error("expected a dimension mismatch error")
	}

	err := store.Upsert(ctx, "docs", []Point{
		{ID: "x", Vector: []float32{1, 0}},
		{ID: "y", Vector: []float32{0, 1}},
		{ID: "xy", Vector: []float32{1, 1}},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if n := store.Len("docs"); n != 3 {
		t.Errorf("expected 3 points, got %d", n)
	}

	results, err := store.Search(ctx, "docs", []float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "x" || math.Abs(float64(results[0].Score)-1.0) > 1e-6 {
		t.Errorf("unexpected best match %+v", results[0])
	}
	if results[1].ID != "xy" {
		t.Errorf("expected xy second, got %s", results[1].ID)
	}

	results, err = store.Search(ctx, "docs", []float32{1, 0}, 10, 0.9)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected the threshold to keep 1 result, got %d", len(results))
	}

	if err := store.Upsert(ctx, "docs", []Point{{ID: "bad", Vector: []float32{1}}}); err == nil {
		t.Error("expected a dimension error on upsert")
	}

	_, err = store.Search(ctx, "missing", []float32{1, 0}, 1, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIndexAddAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	ix := NewIndex(store, HashEmbedder{Dim: 32})

	id, err := ix.Add(ctx, "kb", "go-1", "Go channels coordinate goroutines", map[string]any{"lang": "go"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if id != "go-1" {
		t.Errorf("expected id go-1, got %s", id)
	}

	generated, err := ix.Add(ctx, "kb", "", "Rust ownership and borrowing", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if generated == "" {
		t.Error("expected a generated id")
	}

	results, err := ix.Query(ctx, "kb", "how do goroutines use channels", 1, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	top := results[0]
	if top.ID != "go-1" || top.Point.Payload["lang"] != "go" {
		t.Errorf("unexpected top result %+v", top)
	}
	if top.Point.Payload[TextKey] != "Go channels coordinate goroutines" {
		t.Errorf("expected the text to be stored in the payload, got %v", top.Point.Payload[TextKey])
	}
}

func TestHashEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	a, err := HashEmbedder{}.Embed(ctx, "Hello, world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := HashEmbedder{}.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 dimensions, got %d", len(a))
	}
	if !slices.Equal(a, b) {
		t.Error("expected case and punctuation to be ignored")
	}
}
