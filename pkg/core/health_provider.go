// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthProvider runs registered checkers and caches their results for a
// short TTL so that frequent health checks do not hammer backends.
type HealthProvider struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	cache    map[string]HealthResult
	cacheTTL time.Duration
	now      func() time.Time
}

// NewHealthProvider creates a new health check provider. A zero TTL
// defaults to ten seconds; a negative TTL disables caching.
func NewHealthProvider(cacheTTL time.Duration) *HealthProvider {
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Second
	}
	return &HealthProvider{
		checkers: make(map[string]HealthChecker),
		cache:    make(map[string]HealthResult),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Register registers a health checker for a component.
func (p *HealthProvider) Register(name string, checker HealthChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkers[name] = checker
	delete(p.cache, name)
}

// Check checks the health of a specific component.
func (p *HealthProvider) Check(ctx context.Context, name string) (HealthResult, error) {
	p.mu.RLock()
	checker, exists := p.checkers[name]
	p.mu.RUnlock()

	if !exists {
		return HealthResult{}, fmt.Errorf("checker not registered: %s", name)
	}
	return p.run(ctx, name, checker), nil
}

// CheckAll checks every registered component in name order. The overall
// status is the worst component status.
func (p *HealthProvider) CheckAll(ctx context.Context) HealthReport {
	p.mu.RLock()
	names := make([]string, 0, len(p.checkers))
	for name := range p.checkers {
		names = append(names, name)
	}
	p.mu.RUnlock()
	sort.Strings(names)

	report := HealthReport{Status: HealthHealthy, Components: make([]HealthResult, 0, len(names))}
	for _, name := range names {
		p.mu.RLock()
		checker := p.checkers[name]
		p.mu.RUnlock()

		result := p.run(ctx, name, checker)
		report.Components = append(report.Components, result)
		switch result.Status {
		case HealthUnhealthy:
			report.Status = HealthUnhealthy
		case HealthDegraded:
			if report.Status == HealthHealthy {
				report.Status = HealthDegraded
			}
		}
	}
	return report
}

func (p *HealthProvider) run(ctx context.Context, name string, checker HealthChecker) HealthResult {
	now := p.now()
	if p.cacheTTL > 0 {
		p.mu.RLock()
		cached, ok := p.cache[name]
		p.mu.RUnlock()
		if ok && now.Sub(cached.LastCheck) < p.cacheTTL {
			return cached
		}
	}

	result := checker.Check(ctx)
	result.Component = name
	if result.LastCheck.IsZero() {
		result.LastCheck = now
	}
	if p.cacheTTL > 0 {
		p.mu.Lock()
		p.cache[name] = result
		p.mu.Unlock()
	}
	return result
}

// HealthFunc adapts a plain error-returning check into a HealthChecker.
// A nil error is healthy; any error is unhealthy.
type HealthFunc func(ctx context.Context) error

// Check implements HealthChecker.
func (f HealthFunc) Check(ctx context.Context) HealthResult {
	if err := f(ctx); err != nil {
		return HealthResult{Status: HealthUnhealthy, Error: err.Error()}
	}
	return HealthResult{Status: HealthHealthy}
}

// StaticHealthChecker always reports the same status.
type StaticHealthChecker struct {
	Status  HealthStatus
	Message string
}

// Check implements HealthChecker.
func (s StaticHealthChecker) Check(context.Context) HealthResult {
	return HealthResult{Status: s.Status, Message: s.Message}
}
