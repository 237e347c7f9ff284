// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestWatcherDetectsFileChanges(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "log:\n  level: info\n")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	w := NewWatcher([]string{path}, WithWatchInterval(20*time.Millisecond))
	changes := make(chan struct{}, 4)
	w.OnChange(func() { changes <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change notification")
	}
}

func TestWatcherDetectsNewDirectoryEntries(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher([]string{dir}, WithWatchInterval(20*time.Millisecond))
	changes := make(chan struct{}, 4)
	w.OnChange(func() { changes <- struct{}{} })
	w.Start(context.Background())
	defer w.Stop()

	writeFile(t, dir, "ping.yaml", "agent: {id: ping}\n")

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for directory change")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w := NewWatcher(nil, WithWatchInterval(10*time.Millisecond))
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}

func TestCheckForChangesTracksRemoval(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.yaml", "x: 1\n")
	w := NewWatcher([]string{path, filepath.Join(filepath.Dir(path), "later.yaml")})

	if w.checkForChanges() {
		t.Error("expected no change on the first check")
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !w.checkForChanges() {
		t.Error("expected removal to be detected")
	}
	if w.checkForChanges() {
		t.Error("expected no change after the removal was recorded")
	}

	writeFile(t, filepath.Dir(path), "later.yaml", "y: 2\n")
	if !w.checkForChanges() {
		t.Error("expected a new file to be detected")
	}
}

func TestWatchConfigReloads(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "server:\n  addr: \":9000\"\n")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rc := NewReloadableConfig(cfg)
	updated := make(chan *Config, 1)
	rc.OnUpdate(func(c *Config) { updated <- c })

	w := WatchConfig(context.Background(), Options{Path: path}, rc, WithWatchInterval(20*time.Millisecond))
	defer w.Stop()

	if err := os.WriteFile(path, []byte("server:\n  addr: \":9100\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case c := <-updated:
		if c.Server.Addr != ":9100" {
			t.Errorf("expected reloaded addr :9100, got %s", c.Server.Addr)
		}
		if got := rc.Get().Server.Addr; got != ":9100" {
			t.Errorf("expected current addr :9100, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
}

func TestWatchConfigKeepsPreviousOnError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "kv:\n  provider: memory\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rc := NewReloadableConfig(cfg)

	w := WatchConfig(context.Background(), Options{Path: path}, rc, WithWatchInterval(time.Hour))
	defer w.Stop()

	if err := os.WriteFile(path, []byte("kv:\n  provider: etcd\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.notify()

	if got := rc.Get().KV.Provider; got != "memory" {
		t.Errorf("expected previous kv provider to be kept, got %s", got)
	}
	if !reflect.DeepEqual(rc.Log(), cfg.Log) {
		t.Errorf("log config changed: %+v", rc.Log())
	}
	if !reflect.DeepEqual(rc.Agents(), cfg.Agents) {
		t.Errorf("agents config changed: %+v", rc.Agents())
	}
}
