// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/jllopis/declagent/pkg/core"
)

// ErrOpen is returned without calling the backend while a breaker is open.
var ErrOpen = stderrors.New("circuit breaker open")

// State represents the state of a circuit breaker.
type State string

const (
	// StateClosed means calls go through.
	StateClosed State = "closed"

	// StateOpen means calls are rejected with ErrOpen.
	StateOpen State = "open"

	// StateHalfOpen lets a trial call test whether the backend recovered.
	StateHalfOpen State = "half-open"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit. Zero or less disables the breaker.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes that closes it.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration

	// Name identifies the breaker in health reports.
	Name string
}

// CircuitBreaker stops calling a backend after repeated failures.
type CircuitBreaker struct {
	config    BreakerConfig
	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}
	return &CircuitBreaker{config: config, state: StateClosed, now: time.Now}
}

// Call runs fn unless the circuit is open. The lock is not held while fn
// runs, so concurrent calls proceed in parallel.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if cb == nil || cb.config.FailureThreshold <= 0 {
		return fn(ctx)
	}
	if !cb.allow() {
		return ErrOpen
	}
	err := fn(ctx)
	// Cancellation says nothing about the backend.
	if err != nil && ctx.Err() != nil {
		return err
	}
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.config.OpenTimeout {
		cb.state = StateHalfOpen
		cb.successes = 0
	}
	return cb.state != StateOpen
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.openedAt = cb.now()
			cb.failures = 0
		}
		return
	}
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.successes = 0
		}
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes = 0
}

// Check implements core.HealthChecker: open is unhealthy, half-open is
// degraded.
func (cb *CircuitBreaker) Check(context.Context) core.HealthResult {
	switch cb.State() {
	case StateOpen:
		return core.HealthResult{Status: core.HealthUnhealthy, Message: cb.config.Name + " circuit open"}
	case StateHalfOpen:
		return core.HealthResult{Status: core.HealthDegraded, Message: cb.config.Name + " circuit half-open"}
	default:
		return core.HealthResult{Status: core.HealthHealthy}
	}
}
