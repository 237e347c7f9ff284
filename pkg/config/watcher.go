// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watcher polls files and directories and notifies listeners when any of
// them changes. A directory changes when an entry below it is added,
// removed or modified.
type Watcher struct {
	mu        sync.Mutex
	paths     []string
	interval  time.Duration
	state     map[string]snapshot
	listeners []func()
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
	logger    *slog.Logger
}

type snapshot struct {
	modTime time.Time
	entries int
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval for file changes.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher over paths. Paths that do not exist yet are
// reported once they appear.
func NewWatcher(paths []string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		paths:    paths,
		interval: time.Second,
		state:    make(map[string]snapshot),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, path := range paths {
		if s, ok := stat(path); ok {
			w.state[path] = s
		}
	}
	return w
}

// OnChange registers a callback to be called when a watched path changes.
func (w *Watcher) OnChange(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start begins polling until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops the watcher and waits for the polling loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.checkForChanges() {
				w.notify()
			}
		}
	}
}

func (w *Watcher) checkForChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	for _, path := range w.paths {
		current, ok := stat(path)
		last, seen := w.state[path]
		switch {
		case !ok && seen:
			delete(w.state, path)
			changed = true
		case ok && (!seen || current != last):
			w.state[path] = current
			changed = true
		}
	}
	return changed
}

func (w *Watcher) notify() {
	w.mu.Lock()
	listeners := make([]func(), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("watched files changed", "paths", w.paths)
	for _, fn := range listeners {
		fn()
	}
}

func stat(path string) (snapshot, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, false
	}
	if !info.IsDir() {
		return snapshot{modTime: info.ModTime(), entries: 1}, true
	}

	s := snapshot{modTime: info.ModTime()}
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		s.entries++
		if fi, err := d.Info(); err == nil && fi.ModTime().After(s.modTime) {
			s.modTime = fi.ModTime()
		}
		return nil
	})
	return s, true
}

// WatchConfig reloads the configuration into rc whenever one of its files
// changes. A failed reload keeps the previous configuration.
func WatchConfig(ctx context.Context, opts Options, rc *ReloadableConfig, wopts ...WatcherOption) *Watcher {
	w := NewWatcher(Files(opts.Path, opts.Profile), wopts...)
	w.OnChange(func() {
		cfg, err := LoadWith(opts)
		if err != nil {
			w.logger.Error("failed to reload config", "error", err)
			return
		}
		rc.Update(cfg)
		w.logger.Info("config reloaded successfully")
	})
	w.Start(ctx)
	return w
}

// ReloadableConfig provides a thread-safe wrapper around Config
// that can be atomically updated.
type ReloadableConfig struct {
	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)
}

// NewReloadableConfig creates a new reloadable config wrapper.
func NewReloadableConfig(cfg *Config) *ReloadableConfig {
	return &ReloadableConfig{config: cfg}
}

// Get returns the current configuration.
func (r *ReloadableConfig) Get() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// OnUpdate registers a callback invoked after every Update.
func (r *ReloadableConfig) OnUpdate(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Update atomically replaces the configuration.
func (r *ReloadableConfig) Update(cfg *Config) {
	r.mu.Lock()
	r.config = cfg
	listeners := make([]func(*Config), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// Log returns the log configuration.
func (r *ReloadableConfig) Log() LogConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Log
}

// Agents returns the agent source configuration.
func (r *ReloadableConfig) Agents() AgentsConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config.Agents
}
