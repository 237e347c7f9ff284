// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/declagent/pkg/errors"
	"github.com/jllopis/declagent/pkg/llm"
	"github.com/jllopis/declagent/pkg/mcp"
)

// Policy bundles the settings applied to one wrapped backend.
type Policy struct {
	Retry   RetryConfig
	Breaker BreakerConfig
	// Timeout bounds each attempt. Zero means no extra deadline.
	Timeout time.Duration
}

func (p Policy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(ctx)
}

// Provider wraps an llm.Provider with retries and a circuit breaker.
type Provider struct {
	name    string
	next    llm.Provider
	policy  Policy
	breaker *CircuitBreaker
}

// WrapProvider returns p guarded by policy.
func WrapProvider(name string, p llm.Provider, policy Policy) *Provider {
	policy.Breaker.Name = "llm:" + name
	return &Provider{name: name, next: p, policy: policy, breaker: NewCircuitBreaker(policy.Breaker)}
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	var resp *llm.ChatResponse
	err := p.policy.Retry.Do(ctx, func(ctx context.Context) error {
		return p.breaker.Call(ctx, func(ctx context.Context) error {
			return p.policy.attempt(ctx, func(ctx context.Context) error {
				var err error
				resp, err = p.next.Chat(ctx, req)
				return err
			})
		})
	})
	if stderrors.Is(err, ErrOpen) {
		return nil, errors.Newf(errors.CodeLLMError, "provider %q unavailable", p.name).
			WithContext("provider", p.name)
	}
	return resp, err
}

// Breaker exposes the breaker for health reporting.
func (p *Provider) Breaker() *CircuitBreaker { return p.breaker }

// Unwrap returns the wrapped provider.
func (p *Provider) Unwrap() llm.Provider { return p.next }

// ToolCaller wraps an MCP tool caller with a circuit breaker. Tool calls
// are not retried since they may have side effects.
type ToolCaller struct {
	name    string
	next    mcp.ToolCaller
	policy  Policy
	breaker *CircuitBreaker
}

// WrapToolCaller returns c guarded by policy's breaker and timeout.
func WrapToolCaller(name string, c mcp.ToolCaller, policy Policy) *ToolCaller {
	policy.Breaker.Name = "mcp:" + name
	return &ToolCaller{name: name, next: c, policy: policy, breaker: NewCircuitBreaker(policy.Breaker)}
}

// CallTool implements mcp.ToolCaller.
func (t *ToolCaller) CallTool(ctx context.Context, name string, args map[string]any) (*mcpgo.CallToolResult, error) {
	var res *mcpgo.CallToolResult
	err := t.breaker.Call(ctx, func(ctx context.Context) error {
		return t.policy.attempt(ctx, func(ctx context.Context) error {
			var err error
			res, err = t.next.CallTool(ctx, name, args)
			return err
		})
	})
	if stderrors.Is(err, ErrOpen) {
		return nil, errors.Newf(errors.CodeToolFailure, "mcp server %q unavailable", t.name).
			WithContext("server", t.name).
			WithContext("tool", name)
	}
	return res, err
}

// Breaker exposes the breaker for health reporting.
func (t *ToolCaller) Breaker() *CircuitBreaker { return t.breaker }

var (
	_ llm.Provider   = (*Provider)(nil)
	_ mcp.ToolCaller = (*ToolCaller)(nil)
)
