// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status describes the lifecycle state of an interpretation.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ExecutionContext is the caller-owned side channel an interpretation
// reports progress and its final state through. Step handlers receive it
// too and may log to it.
type ExecutionContext interface {
	Log(msg string)
	SetOutput(v any)
	SetError(msg string)
}

// Execution is the default ExecutionContext. It is safe for concurrent
// readers polling while an interpretation runs.
type Execution struct {
	ID        string
	StartedAt time.Time

	mu         sync.RWMutex
	status     Status
	output     any
	errMsg     string
	logs       []string
	finishedAt time.Time
	logger     *slog.Logger
}

// ExecutionOption configures an Execution.
type ExecutionOption func(*Execution)

// WithExecutionLogger mirrors every Log call to logger at debug level.
func WithExecutionLogger(logger *slog.Logger) ExecutionOption {
	return func(e *Execution) {
		e.logger = logger
	}
}

// WithExecutionID overrides the generated execution id.
func WithExecutionID(id string) ExecutionOption {
	return func(e *Execution) {
		if id != "" {
			e.ID = id
		}
	}
}

// NewExecution creates a running execution with a generated id.
func NewExecution(opts ...ExecutionOption) *Execution {
	e := &Execution{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		status:    StatusRunning,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Log appends a progress line.
func (e *Execution) Log(msg string) {
	e.mu.Lock()
	e.logs = append(e.logs, msg)
	logger := e.logger
	e.mu.Unlock()
	if logger != nil {
		logger.LogAttrs(context.Background(), slog.LevelDebug, msg, slog.String("execution_id", e.ID))
	}
}

// SetOutput records the final output and marks the execution successful.
func (e *Execution) SetOutput(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.output = v
	e.status = StatusSuccess
	e.errMsg = ""
	e.finishedAt = time.Now().UTC()
}

// SetError records the failure message and marks the execution failed.
func (e *Execution) SetError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errMsg = msg
	e.status = StatusError
	e.finishedAt = time.Now().UTC()
}

// Status returns the current lifecycle state.
func (e *Execution) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Output returns the recorded output, nil until SetOutput is called.
func (e *Execution) Output() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.output
}

// Error returns the recorded failure message, empty unless SetError was called.
func (e *Execution) Error() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.errMsg
}

// Logs returns a copy of the progress lines.
func (e *Execution) Logs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.logs))
	copy(out, e.logs)
	return out
}

// Duration reports how long the execution ran, or has been running.
func (e *Execution) Duration() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.finishedAt.IsZero() {
		return time.Since(e.StartedAt)
	}
	return e.finishedAt.Sub(e.StartedAt)
}

// Discard is an ExecutionContext that drops everything.
type Discard struct{}

func (Discard) Log(string)      {}
func (Discard) SetOutput(any)   {}
func (Discard) SetError(string) {}

var _ ExecutionContext = (*Execution)(nil)
