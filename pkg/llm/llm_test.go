// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	kerrors "github.com/jllopis/declagent/pkg/errors"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Model:    "test",
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("expected 'Hello world', got %q", resp.Content)
	}
	if resp.Model != "test" {
		t.Errorf("expected model test, got %q", resp.Model)
	}
	reqs := mock.Requests()
	if len(reqs) != 1 || reqs[0].Messages[0].Content != "Hi" {
		t.Errorf("unexpected recorded requests %+v", reqs)
	}
}

func TestScriptedMockProvider(t *testing.T) {
	ctx := context.Background()
	mock := NewScriptedMockProvider("one", "two")

	first, err := mock.Chat(ctx, ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	second, err := mock.Chat(ctx, ChatRequest{})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if first.Content != "one" || first.Model != "m" || second.Content != "two" {
		t.Errorf("unexpected responses %+v, %+v", first, second)
	}

	_, err = mock.Chat(ctx, ChatRequest{})
	if !kerrors.HasCode(err, kerrors.CodeLLMError) {
		t.Errorf("expected LLM_ERROR once the script is exhausted, got %v", err)
	}
	if mock.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", mock.Calls())
	}

	looping := NewScriptedMockProvider("a", "b")
	looping.Loop = true
	var got []string
	for i := 0; i < 5; i++ {
		resp, err := looping.Chat(ctx, ChatRequest{})
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		got = append(got, resp.Content)
	}
	if want := []string{"a", "b", "a", "b", "a"}; !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "llama3.2" || req.Stream {
			t.Errorf("unexpected request %+v", req)
		}
		if req.Options["temperature"] != 0.2 {
			t.Errorf("expected temperature 0.2, got %v", req.Options["temperature"])
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(req.Messages))
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": "bonjour"},
			"done":              true,
			"prompt_eval_count": 7,
			"eval_count":        3,
		})
	}))
	defer srv.Close()

	p := NewOllama(srv.URL + "/")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "Translate to French"},
			{Role: RoleUser, Content: "hello"},
		},
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "bonjour" || resp.Model != "llama3.2" {
		t.Errorf("unexpected response %+v", resp)
	}
	if want := (Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}); resp.Usage != want {
		t.Errorf("usage = %+v, want %+v", resp.Usage, want)
	}
}

func TestOllamaChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, WithOllamaModel("missing")).Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"status 404", "model not found"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestMockImageGenerator(t *testing.T) {
	gen := &MockImageGenerator{}
	resp, err := gen.GenerateImage(context.Background(), ImageRequest{Prompt: "cat"})
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if resp.URL != "https://images.example.test/3.png" {
		t.Errorf("unexpected url %s", resp.URL)
	}

	_, err = (&MockImageGenerator{Err: errors.New("quota")}).GenerateImage(context.Background(), ImageRequest{})
	if err == nil || err.Error() != "quota" {
		t.Errorf("expected quota error, got %v", err)
	}
}
