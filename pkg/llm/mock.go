// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a testing implementation of Provider. It records every
// request it receives.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Model:   req.Model,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// Requests returns the requests received so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

// Chat implements Provider.
func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}

// MockImageGenerator returns a fixed URL derived from the prompt.
type MockImageGenerator struct {
	BaseURL string
	Err     error
}

// GenerateImage implements ImageGenerator.
func (m *MockImageGenerator) GenerateImage(_ context.Context, req ImageRequest) (*ImageResponse, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	base := m.BaseURL
	if base == "" {
		base = "https://images.example.test"
	}
	return &ImageResponse{
		URL:           fmt.Sprintf("%s/%d.png", base, len(req.Prompt)),
		RevisedPrompt: req.Prompt,
	}, nil
}
