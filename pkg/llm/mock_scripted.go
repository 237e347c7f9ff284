// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"sync"

	"github.com/jllopis/declagent/pkg/errors"
)

// ScriptedMockProvider answers each call with the next scripted response.
// With Loop set the script restarts once exhausted; otherwise further
// calls fail with CodeLLMError.
type ScriptedMockProvider struct {
	Loop bool

	mu        sync.Mutex
	responses []string
	next      int
	calls     int
}

// NewScriptedMockProvider creates a provider that replays responses in order.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{responses: responses}
}

// Chat implements Provider.
func (s *ScriptedMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.next >= len(s.responses) {
		if !s.Loop || len(s.responses) == 0 {
			return nil, errors.Newf(errors.CodeLLMError, "scripted mock exhausted after %d responses", len(s.responses))
		}
		s.next = 0
	}
	content := s.responses[s.next]
	s.next++

	return &ChatResponse{
		Content: content,
		Model:   req.Model,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// Calls returns how many times Chat has been called.
func (s *ScriptedMockProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
