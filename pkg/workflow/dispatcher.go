// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/core"
	"github.com/jllopis/declagent/pkg/errors"
	"github.com/jllopis/declagent/pkg/kv"
	"github.com/jllopis/declagent/pkg/llm"
	"github.com/jllopis/declagent/pkg/mcp"
	"github.com/jllopis/declagent/pkg/memory"
)

// NamespaceProp is the caller prop used as the default kv namespace.
const NamespaceProp = "namespace"

// Call carries the per-interpretation context a handler may use.
type Call struct {
	Step  string
	Props map[string]any
	Exec  core.ExecutionContext
}

func (c Call) log(format string, args ...any) {
	if c.Exec != nil {
		c.Exec.Log(fmt.Sprintf(format, args...))
	}
}

// Dispatcher routes decoded actions to their collaborators. A step type
// whose collaborator is not configured fails with UNSUPPORTED_STEP.
type Dispatcher struct {
	providers       map[string]llm.Provider
	defaultProvider string
	embedder        memory.Embedder
	vectors         memory.VectorStore
	index           *memory.Index
	images          llm.ImageGenerator
	tools           map[string]mcp.ToolCaller
	kv              kv.Store
	logger          *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithProvider registers a named chat provider. The first provider
// registered becomes the default unless WithDefaultProvider says otherwise.
func WithProvider(name string, p llm.Provider) Option {
	return func(d *Dispatcher) {
		if p == nil {
			return
		}
		d.providers[name] = p
		if d.defaultProvider == "" {
			d.defaultProvider = name
		}
	}
}

// WithDefaultProvider selects the provider used when an llm action names none.
func WithDefaultProvider(name string) Option {
	return func(d *Dispatcher) {
		d.defaultProvider = name
	}
}

// WithEmbedder sets the embedder used by embed and vector steps.
func WithEmbedder(e memory.Embedder) Option {
	return func(d *Dispatcher) {
		d.embedder = e
	}
}

// WithVectorStore sets the vector store used by vector steps.
func WithVectorStore(s memory.VectorStore) Option {
	return func(d *Dispatcher) {
		d.vectors = s
	}
}

// WithImageGenerator sets the image step collaborator.
func WithImageGenerator(g llm.ImageGenerator) Option {
	return func(d *Dispatcher) {
		d.images = g
	}
}

// WithToolCaller registers an MCP tool caller under a server name.
func WithToolCaller(server string, c mcp.ToolCaller) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.tools[server] = c
		}
	}
}

// WithKV sets the key/value store.
func WithKV(s kv.Store) Option {
	return func(d *Dispatcher) {
		d.kv = s
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a Dispatcher. With no options only output-generator
// steps can run.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		providers: make(map[string]llm.Provider),
		tools:     make(map[string]mcp.ToolCaller),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.embedder != nil && d.vectors != nil {
		d.index = memory.NewIndex(d.vectors, d.embedder)
	}
	return d
}

// Supports reports whether a handler is configured for stepType.
func (d *Dispatcher) Supports(stepType agentdef.StepType) bool {
	switch stepType {
	case agentdef.StepOutputGenerator:
		return true
	case agentdef.StepLLM:
		return len(d.providers) > 0
	case agentdef.StepEmbed:
		return d.embedder != nil
	case agentdef.StepVectorUpsert, agentdef.StepVectorSearch:
		return d.index != nil
	case agentdef.StepImage:
		return d.images != nil
	case agentdef.StepTool:
		return len(d.tools) > 0
	case agentdef.StepKVGet, agentdef.StepKVSet:
		return d.kv != nil
	default:
		return false
	}
}

// Dispatch decodes the resolved action for stepType and runs it. Errors
// returned by collaborators are passed through unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, stepType agentdef.StepType, resolved any, call Call) (any, error) {
	action, err := Decode(stepType, resolved)
	if err != nil {
		return nil, err
	}
	if !d.Supports(stepType) {
		return nil, errors.Newf(errors.CodeUnsupportedStep, "no handler configured for step type %q", stepType).
			WithContext("type", string(stepType)).
			WithContext("step", call.Step)
	}

	switch a := action.(type) {
	case OutputAction:
		return a.Value, nil
	case LLMAction:
		return d.chat(ctx, a, call)
	case EmbedAction:
		return d.embed(ctx, a, call)
	case VectorUpsertAction:
		return d.vectorUpsert(ctx, a, call)
	case VectorSearchAction:
		return d.vectorSearch(ctx, a, call)
	case ImageAction:
		return d.image(ctx, a, call)
	case ToolAction:
		return d.tool(ctx, a, call)
	case KVGetAction:
		return d.kvGet(ctx, a, call)
	case KVSetAction:
		return d.kvSet(ctx, a, call)
	default:
		return nil, unsupported(stepType)
	}
}

func (d *Dispatcher) chat(ctx context.Context, a LLMAction, call Call) (any, error) {
	name := a.Provider
	if name == "" {
		name = d.defaultProvider
	}
	provider, ok := d.providers[name]
	if !ok {
		return nil, errors.Newf(errors.CodeUnsupportedStep, "llm provider %q is not configured", name).
			WithContext("step", call.Step).
			WithContext("available", sortedNames(d.providers))
	}

	messages := make([]llm.Message, 0, len(a.Messages)+2)
	if a.System != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.System})
	}
	for _, m := range a.Messages {
		messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	if a.Prompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: a.Prompt})
	}

	call.log("llm: provider=%s model=%s messages=%d", name, a.Model, len(messages))
	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Model:       a.Model,
		Messages:    messages,
		Temperature: a.Temperature,
		MaxTokens:   a.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = a.Model
	}
	return map[string]any{
		"content": resp.Content,
		"model":   model,
		"usage": map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}, nil
}

func (d *Dispatcher) embed(ctx context.Context, a EmbedAction, call Call) (any, error) {
	call.log("embed: %d characters", len(a.Text))
	vec, err := d.embedder.Embed(ctx, a.Text)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(vec))
	for i, v := range vec {
		values[i] = float64(v)
	}
	return map[string]any{"vector": values, "dimensions": len(vec)}, nil
}

func (d *Dispatcher) vectorUpsert(ctx context.Context, a VectorUpsertAction, call Call) (any, error) {
	call.log("vector-upsert: collection=%s", a.Collection)
	id, err := d.index.Add(ctx, a.Collection, a.ID, a.Text, a.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "collection": a.Collection}, nil
}

func (d *Dispatcher) vectorSearch(ctx context.Context, a VectorSearchAction, call Call) (any, error) {
	limit := a.Limit
	if limit == 0 {
		limit = 5
	}
	call.log("vector-search: collection=%s limit=%d", a.Collection, limit)
	results, err := d.index.Query(ctx, a.Collection, a.Query, limit, float32(a.Threshold))
	if err != nil {
		return nil, err
	}
	out := make([]any, len(results))
	for i, r := range results {
		payload := make(map[string]any, len(r.Point.Payload))
		for k, v := range r.Point.Payload {
			payload[k] = v
		}
		out[i] = map[string]any{
			"id":      r.ID,
			"score":   float64(r.Score),
			"payload": payload,
		}
	}
	return out, nil
}

func (d *Dispatcher) image(ctx context.Context, a ImageAction, call Call) (any, error) {
	call.log("image: model=%s size=%s", a.Model, a.Size)
	resp, err := d.images.GenerateImage(ctx, llm.ImageRequest{Prompt: a.Prompt, Model: a.Model, Size: a.Size})
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": resp.URL, "revised_prompt": resp.RevisedPrompt}, nil
}

func (d *Dispatcher) tool(ctx context.Context, a ToolAction, call Call) (any, error) {
	server := a.Server
	if server == "" && len(d.tools) == 1 {
		for name := range d.tools {
			server = name
		}
	}
	caller, ok := d.tools[server]
	if !ok {
		return nil, errors.Newf(errors.CodeUnsupportedStep, "mcp server %q is not configured", server).
			WithContext("step", call.Step).
			WithContext("available", sortedNames(d.tools))
	}
	args := a.Arguments
	if args == nil {
		args = map[string]any{}
	}
	call.log("tool: server=%s tool=%s", server, a.Tool)
	result, err := caller.CallTool(ctx, a.Tool, args)
	if err != nil {
		return nil, err
	}
	return mcp.ResultValue(result), nil
}

func (d *Dispatcher) kvGet(ctx context.Context, a KVGetAction, call Call) (any, error) {
	key := namespaced(a.Namespace, a.Key, call.Props)
	value, found, err := d.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	call.log("kv-get: key=%s found=%t", key, found)
	return map[string]any{"key": a.Key, "value": value, "found": found}, nil
}

func (d *Dispatcher) kvSet(ctx context.Context, a KVSetAction, call Call) (any, error) {
	key := namespaced(a.Namespace, a.Key, call.Props)
	if err := d.kv.Set(ctx, key, a.Value, a.TTL); err != nil {
		return nil, err
	}
	call.log("kv-set: key=%s ttl=%s", key, a.TTL)
	return map[string]any{"key": a.Key, "stored": true}, nil
}

// namespaced prefixes key with the action namespace, falling back to the
// caller's namespace prop.
func namespaced(namespace, key string, props map[string]any) string {
	if namespace == "" {
		if ns, ok := props[NamespaceProp].(string); ok {
			namespace = ns
		}
	}
	namespace = strings.Trim(namespace, ":")
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
