// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestHealthProviderAggregates(t *testing.T) {
	cases := []struct {
		name     string
		statuses []HealthStatus
		want     HealthStatus
	}{
		{"empty", nil, HealthHealthy},
		{"all healthy", []HealthStatus{HealthHealthy, HealthHealthy}, HealthHealthy},
		{"one degraded", []HealthStatus{HealthHealthy, HealthDegraded}, HealthDegraded},
		{"unhealthy wins", []HealthStatus{HealthDegraded, HealthUnhealthy, HealthHealthy}, HealthUnhealthy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewHealthProvider(-1)
			for i, s := range tc.statuses {
				p.Register(fmt.Sprintf("c%d", i), StaticHealthChecker{Status: s})
			}
			report := p.CheckAll(context.Background())
			if report.Status != tc.want {
				t.Errorf("expected %s, got %s", tc.want, report.Status)
			}
			if len(report.Components) != len(tc.statuses) {
				t.Errorf("expected %d components, got %d", len(tc.statuses), len(report.Components))
			}
		})
	}
}

func TestHealthProviderOrdersAndNamesComponents(t *testing.T) {
	p := NewHealthProvider(-1)
	p.Register("registry", StaticHealthChecker{Status: HealthHealthy})
	p.Register("kv", HealthFunc(func(context.Context) error { return fmt.Errorf("connection refused") }))

	report := p.CheckAll(context.Background())
	if len(report.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(report.Components))
	}
	kv := report.Components[0]
	if kv.Component != "kv" || kv.Status != HealthUnhealthy || kv.Error != "connection refused" {
		t.Errorf("unexpected kv result %+v", kv)
	}
	if kv.LastCheck.IsZero() {
		t.Error("expected LastCheck to be set")
	}
	if got := report.Components[1].Component; got != "registry" {
		t.Errorf("expected registry second, got %s", got)
	}
}

func TestHealthProviderCachesResults(t *testing.T) {
	var calls atomic.Int32
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewHealthProvider(5 * time.Second)
	p.now = func() time.Time { return now }
	p.Register("vector", HealthFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}))

	for i := 0; i < 3; i++ {
		if _, err := p.Check(context.Background(), "vector"); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 call within the TTL, got %d", n)
	}

	now = now.Add(6 * time.Second)
	if _, err := p.Check(context.Background(), "vector"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected a fresh check after the TTL, got %d calls", n)
	}
}

func TestHealthProviderUnknownComponent(t *testing.T) {
	_, err := NewHealthProvider(0).Check(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "checker not registered") {
		t.Errorf("expected checker not registered error, got %v", err)
	}
}
