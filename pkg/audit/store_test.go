// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"
)

func sampleEvents() []Event {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return []Event{
		{AgentID: "ping", RunID: "run-1", Kind: KindAgent, Status: StatusStarted, StartedAt: now},
		{AgentID: "ping", RunID: "run-1", Step: "reply", Kind: "output-generator", Status: StatusCompleted,
			Output: map[string]any{"response": "pong"}, StartedAt: now, FinishedAt: now.Add(time.Millisecond)},
		{AgentID: "ping", RunID: "run-2", Step: "reply", Kind: "llm", Status: StatusFailed,
			Error: "provider exploded", StartedAt: now},
	}
}

func listEvents(t *testing.T, store Store, f Filter) []Event {
	t.Helper()
	events, err := store.List(context.Background(), f)
	if err != nil {
		t.Fatalf("List(%+v) failed: %v", f, err)
	}
	return events
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	for _, ev := range sampleEvents() {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	all := listEvents(t, store, Filter{AgentID: "ping"})
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].Status != StatusStarted {
		t.Errorf("expected events in insertion order, first is %s", all[0].Status)
	}

	run1 := listEvents(t, store, Filter{RunID: "run-1", Step: "reply"})
	if len(run1) != 1 {
		t.Fatalf("expected 1 event for run-1/reply, got %d", len(run1))
	}
	if !reflect.DeepEqual(run1[0].Output, map[string]any{"response": "pong"}) {
		t.Errorf("unexpected output %v", run1[0].Output)
	}
	if run1[0].FinishedAt.IsZero() {
		t.Error("expected FinishedAt to be kept")
	}

	failed := listEvents(t, store, Filter{Status: StatusFailed})
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed event, got %d", len(failed))
	}
	if failed[0].Error != "provider exploded" || failed[0].Kind != "llm" {
		t.Errorf("unexpected failed event %+v", failed[0])
	}

	if limited := listEvents(t, store, Filter{Limit: 2}); len(limited) != 2 {
		t.Errorf("expected the limit to apply, got %d events", len(limited))
	}
	if none := listEvents(t, store, Filter{AgentID: "other"}); len(none) != 0 {
		t.Errorf("expected no events for another agent, got %d", len(none))
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:agent_audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	exerciseStore(t, store)
}

func TestOpenSQLite(t *testing.T) {
	store, err := OpenSQLite("file:" + t.TempDir() + "/audit.db")
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ev := Event{AgentID: "a", RunID: "r", Kind: KindAgent, Status: StatusStarted, StartedAt: time.Now()}
	if err := store.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	events := listEvents(t, store, Filter{})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Output != nil {
		t.Errorf("expected no output, got %v", events[0].Output)
	}
	if !events[0].FinishedAt.IsZero() {
		t.Errorf("expected zero FinishedAt, got %s", events[0].FinishedAt)
	}
}

func TestNewSQLiteStoreRejectsNilDB(t *testing.T) {
	if _, err := NewSQLiteStore(nil); err == nil {
		t.Error("expected an error for a nil db")
	}
}
