// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/core"
	"github.com/jllopis/declagent/pkg/errors"
	"github.com/jllopis/declagent/pkg/kv"
	"github.com/jllopis/declagent/pkg/llm"
	"github.com/jllopis/declagent/pkg/memory"
)

type stubTools struct {
	calls []string
	args  map[string]any
	err   error
}

func (s *stubTools) CallTool(_ context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.calls = append(s.calls, name)
	s.args = args
	if s.err != nil {
		return nil, s.err
	}
	return mcp.NewToolResultText(`{"sum":3}`), nil
}

func TestDecodeActions(t *testing.T) {
	a, err := Decode(agentdef.StepLLM, map[string]any{
		"prompt":      "hi",
		"temperature": "0.5",
		"max_tokens":  64,
	})
	require.NoError(t, err)
	assert.Equal(t, LLMAction{Prompt: "hi", Temperature: 0.5, MaxTokens: 64}, a)

	a, err = Decode(agentdef.StepKVSet, map[string]any{"key": "k", "value": []any{1}, "ttl": "1m"})
	require.NoError(t, err)
	assert.Equal(t, KVSetAction{Key: "k", Value: []any{1}, TTL: time.Minute}, a)

	var action map[string]any
	require.NoError(t, yaml.Unmarshal([]byte("{key: session, value: x, ttl: 3600}"), &action))
	a, err = Decode(agentdef.StepKVSet, action)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, a.(KVSetAction).TTL, "bare numbers are seconds")

	a, err = Decode(agentdef.StepKVSet, map[string]any{"key": "k", "ttl": 1.5})
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, a.(KVSetAction).TTL)

	a, err = Decode(agentdef.StepOutputGenerator, "pong")
	require.NoError(t, err)
	assert.Equal(t, OutputAction{Value: "pong"}, a)
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name     string
		stepType agentdef.StepType
		action   any
		code     errors.ErrorCode
	}{
		{"unknown type", "teleport", map[string]any{}, errors.CodeUnsupportedStep},
		{"not a mapping", agentdef.StepEmbed, "text", errors.CodeInvalidDocument},
		{"unknown field", agentdef.StepEmbed, map[string]any{"text": "a", "colour": "red"}, errors.CodeInvalidDocument},
		{"missing required", agentdef.StepVectorSearch, map[string]any{"collection": "docs"}, errors.CodeInvalidDocument},
		{"nil payload", agentdef.StepKVGet, nil, errors.CodeInvalidDocument},
		{"bad role", agentdef.StepLLM, map[string]any{"messages": []any{map[string]any{"role": "robot", "content": "x"}}}, errors.CodeInvalidDocument},
		{"negative ttl", agentdef.StepKVSet, map[string]any{"key": "k", "ttl": "-1s"}, errors.CodeInvalidDocument},
		{"negative numeric ttl", agentdef.StepKVSet, map[string]any{"key": "k", "ttl": -5}, errors.CodeInvalidDocument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.stepType, tc.action)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestDispatchOutputGenerator(t *testing.T) {
	d := NewDispatcher()
	out, err := d.Dispatch(context.Background(), agentdef.StepOutputGenerator, map[string]any{"response": "pong"}, Call{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "pong"}, out)
}

func TestDispatchWithoutHandler(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Dispatch(context.Background(), agentdef.StepEmbed, map[string]any{"text": "a"}, Call{Step: "vec"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedStep))
	assert.Contains(t, err.Error(), "no handler configured")
	assert.False(t, d.Supports(agentdef.StepEmbed))
	assert.True(t, d.Supports(agentdef.StepOutputGenerator))
}

func TestDispatchLLM(t *testing.T) {
	mock := &llm.MockProvider{Response: "hello there"}
	exec := core.NewExecution()
	d := NewDispatcher(WithProvider("mock", mock))

	out, err := d.Dispatch(context.Background(), agentdef.StepLLM, map[string]any{
		"model":  "tiny",
		"system": "be brief",
		"messages": []any{
			map[string]any{"role": "assistant", "content": "earlier"},
		},
		"prompt": "say hi",
	}, Call{Step: "chat", Exec: exec})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"content": "hello there",
		"model":   "tiny",
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 10,
			"total_tokens":      20,
		},
	}, out)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleAssistant, Content: "earlier"},
		{Role: llm.RoleUser, Content: "say hi"},
	}, reqs[0].Messages)
	require.NotEmpty(t, exec.Logs())
	assert.Contains(t, exec.Logs()[0], "provider=mock")
}

func TestDispatchLLMProviderSelection(t *testing.T) {
	a := &llm.MockProvider{Response: "a"}
	b := &llm.MockProvider{Response: "b"}
	d := NewDispatcher(WithProvider("a", a), WithProvider("b", b), WithDefaultProvider("b"))

	out, err := d.Dispatch(context.Background(), agentdef.StepLLM, map[string]any{"prompt": "x"}, Call{})
	require.NoError(t, err)
	assert.Equal(t, "b", out.(map[string]any)["content"])

	out, err = d.Dispatch(context.Background(), agentdef.StepLLM, map[string]any{"prompt": "x", "provider": "a"}, Call{})
	require.NoError(t, err)
	assert.Equal(t, "a", out.(map[string]any)["content"])

	_, err = d.Dispatch(context.Background(), agentdef.StepLLM, map[string]any{"prompt": "x", "provider": "c"}, Call{})
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedStep))
}

func TestDispatchPropagatesCollaboratorErrors(t *testing.T) {
	boom := fmt.Errorf("provider exploded")
	d := NewDispatcher(WithProvider("x", &llm.FailingMockProvider{Err: boom}))
	_, err := d.Dispatch(context.Background(), agentdef.StepLLM, map[string]any{"prompt": "x"}, Call{})
	assert.Same(t, boom, err)
}

func TestDispatchVectorSteps(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(
		WithEmbedder(&memory.HashEmbedder{Dim: 32}),
		WithVectorStore(memory.NewInMemoryStore()),
	)

	out, err := d.Dispatch(ctx, agentdef.StepEmbed, map[string]any{"text": "go channels"}, Call{})
	require.NoError(t, err)
	embedded := out.(map[string]any)
	assert.Equal(t, 32, embedded["dimensions"])
	assert.Len(t, embedded["vector"], 32)

	for id, text := range map[string]string{"go": "go channels and goroutines", "rust": "rust ownership and borrowing"} {
		out, err := d.Dispatch(ctx, agentdef.StepVectorUpsert, map[string]any{
			"collection": "docs",
			"id":         id,
			"text":       text,
			"metadata":   map[string]any{"lang": id},
		}, Call{})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"id": id, "collection": "docs"}, out)
	}

	out, err = d.Dispatch(ctx, agentdef.StepVectorSearch, map[string]any{
		"collection": "docs",
		"query":      "goroutines",
		"limit":      1,
	}, Call{})
	require.NoError(t, err)
	hits := out.([]any)
	require.Len(t, hits, 1)
	hit := hits[0].(map[string]any)
	assert.Equal(t, "go", hit["id"])
	assert.Equal(t, "go", hit["payload"].(map[string]any)["lang"])
	assert.Equal(t, "go channels and goroutines", hit["payload"].(map[string]any)[memory.TextKey])
}

func TestDispatchImage(t *testing.T) {
	d := NewDispatcher(WithImageGenerator(&llm.MockImageGenerator{}))
	out, err := d.Dispatch(context.Background(), agentdef.StepImage, map[string]any{"prompt": "a cat"}, Call{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"url": "https://images.example.test/5.png", "revised_prompt": "a cat"}, out)
}

func TestDispatchTool(t *testing.T) {
	tools := &stubTools{}
	d := NewDispatcher(WithToolCaller("calc", tools))

	out, err := d.Dispatch(context.Background(), agentdef.StepTool, map[string]any{
		"tool":      "add",
		"arguments": map[string]any{"a": 1, "b": 2},
	}, Call{})
	require.NoError(t, err)
	assert.Equal(t, []string{"add"}, tools.calls)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, tools.args)

	result := out.(map[string]any)
	assert.Equal(t, false, result["is_error"])
	assert.Equal(t, map[string]any{"sum": float64(3)}, result["structured"])

	_, err = d.Dispatch(context.Background(), agentdef.StepTool, map[string]any{"server": "other", "tool": "add"}, Call{})
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedStep))
}

func TestDispatchKV(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	d := NewDispatcher(WithKV(store))
	call := Call{Props: map[string]any{NamespaceProp: "tenant-a"}}

	out, err := d.Dispatch(ctx, agentdef.StepKVGet, map[string]any{"key": "counter"}, call)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "counter", "value": nil, "found": false}, out)

	out, err = d.Dispatch(ctx, agentdef.StepKVSet, map[string]any{"key": "counter", "value": 7}, call)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "counter", "stored": true}, out)

	v, found, err := store.Get(ctx, "tenant-a:counter")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, v)

	out, err = d.Dispatch(ctx, agentdef.StepKVGet, map[string]any{"key": "counter", "namespace": "tenant-b"}, call)
	require.NoError(t, err)
	assert.Equal(t, false, out.(map[string]any)["found"])
}

func TestNamespaced(t *testing.T) {
	assert.Equal(t, "k", namespaced("", "k", nil))
	assert.Equal(t, "ns:k", namespaced("ns:", "k", nil))
	assert.Equal(t, "p:k", namespaced("", "k", map[string]any{NamespaceProp: "p"}))
	assert.Equal(t, "a:k", namespaced("a", "k", map[string]any{NamespaceProp: "p"}))
}
