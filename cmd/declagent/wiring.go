// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/audit"
	"github.com/jllopis/declagent/pkg/config"
	"github.com/jllopis/declagent/pkg/core"
	"github.com/jllopis/declagent/pkg/interpreter"
	"github.com/jllopis/declagent/pkg/kv"
	"github.com/jllopis/declagent/pkg/llm"
	"github.com/jllopis/declagent/pkg/mcp"
	"github.com/jllopis/declagent/pkg/memory"
	ollamaemb "github.com/jllopis/declagent/pkg/memory/ollama"
	"github.com/jllopis/declagent/pkg/memory/qdrant"
	"github.com/jllopis/declagent/pkg/registry"
	"github.com/jllopis/declagent/pkg/resilience"
	"github.com/jllopis/declagent/pkg/telemetry"
	"github.com/jllopis/declagent/pkg/workflow"
	"github.com/jllopis/declagent/providers/anthropic"
	"github.com/jllopis/declagent/providers/gemini"
	"github.com/jllopis/declagent/providers/openai"
	"github.com/jllopis/declagent/providers/qwen"
)

//go:embed agents/*.yaml
var bundledAgents embed.FS

const serviceName = "declagent"

// app holds every collaborator built from the configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *registry.Registry
	interp   *interpreter.Interpreter
	health   *core.HealthProvider
	audit    audit.Store
	closers  []func() error
}

// buildApp wires the interpreter and its collaborators from cfg. On error
// everything opened so far is closed.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{
		cfg:    cfg,
		logger: logger,
		health: core.NewHealthProvider(0),
	}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	shutdown, err := telemetry.InitWithConfig(serviceName, version, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})

	dispatcherOpts := []workflow.Option{workflow.WithLogger(logger)}

	providerOpts, err := a.buildProviders(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	dispatcherOpts = append(dispatcherOpts, providerOpts...)

	embedder, err := buildEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return nil, err
	}
	dispatcherOpts = append(dispatcherOpts, workflow.WithEmbedder(embedder))

	store, err := a.buildVectorStore(cfg.Vector)
	if err != nil {
		return nil, err
	}
	dispatcherOpts = append(dispatcherOpts, workflow.WithVectorStore(store))

	if images := buildImageGenerator(cfg.Image); images != nil {
		dispatcherOpts = append(dispatcherOpts, workflow.WithImageGenerator(images))
	}

	tools, err := a.buildToolCallers(ctx, cfg.MCP)
	if err != nil {
		return nil, err
	}
	dispatcherOpts = append(dispatcherOpts, tools...)

	kvStore, err := a.buildKV(ctx, cfg.KV)
	if err != nil {
		return nil, err
	}
	dispatcherOpts = append(dispatcherOpts, workflow.WithKV(kvStore))

	auditStore, err := a.buildAudit(cfg.Audit)
	if err != nil {
		return nil, err
	}
	a.audit = auditStore

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	a.registry = registry.New(
		registry.WithSource(buildSources(cfg.Agents)),
		registry.WithLogger(logger),
	)
	a.health.Register("registry", registryHealth{a.registry})

	a.interp = interpreter.New(
		interpreter.WithDispatcher(workflow.NewDispatcher(dispatcherOpts...)),
		interpreter.WithLogger(logger),
		interpreter.WithAuditStore(auditStore),
		interpreter.WithMetrics(metrics),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}

func (a *app) buildProviders(ctx context.Context, cfg config.LLMConfig) ([]workflow.Option, error) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var opts []workflow.Option
	for _, name := range names {
		pc := cfg.Providers[name]
		p, err := buildProvider(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("llm provider %q: %w", name, err)
		}
		guarded := resilience.WrapProvider(name, p, policy(a.cfg.Resilience))
		a.health.Register("llm:"+name, guarded.Breaker())
		opts = append(opts, workflow.WithProvider(name, guarded))
	}
	if cfg.Default != "" {
		opts = append(opts, workflow.WithDefaultProvider(cfg.Default))
	}
	return opts, nil
}

func buildProvider(ctx context.Context, pc config.ProviderConfig) (llm.Provider, error) {
	switch pc.Type {
	case "ollama":
		return llm.NewOllama(pc.BaseURL, llm.WithOllamaModel(pc.Model)), nil
	case "openai":
		return openai.New(
			openai.WithAPIKey(pc.APIKey),
			openai.WithBaseURL(pc.BaseURL),
			openai.WithModel(pc.Model),
		), nil
	case "anthropic":
		return anthropic.New(
			anthropic.WithAPIKey(pc.APIKey),
			anthropic.WithBaseURL(pc.BaseURL),
			anthropic.WithModel(pc.Model),
		), nil
	case "gemini":
		return gemini.New(ctx, gemini.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL}, gemini.WithModel(pc.Model))
	case "qwen":
		return qwen.New(pc.APIKey, qwen.WithBaseURL(pc.BaseURL), qwen.WithModel(pc.Model)), nil
	case "mock":
		if len(pc.Responses) > 0 {
			p := llm.NewScriptedMockProvider(pc.Responses...)
			p.Loop = true
			return p, nil
		}
		return &llm.MockProvider{Response: "This is a mock response."}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider type %q", pc.Type)
	}
}

func buildEmbedder(ctx context.Context, cfg config.EmbedderConfig) (memory.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return ollamaemb.NewEmbedder(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return openai.New(
			openai.WithAPIKey(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithEmbeddingModel(cfg.Model, cfg.Dimensions),
		), nil
	case "gemini":
		return gemini.New(ctx, gemini.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL},
			gemini.WithEmbeddingModel(cfg.Model, cfg.Dimensions))
	case "qwen":
		return qwen.New(cfg.APIKey, qwen.WithBaseURL(cfg.BaseURL), qwen.WithEmbeddingModel(cfg.Model, cfg.Dimensions)), nil
	default:
		return memory.HashEmbedder{Dim: cfg.Dimensions}, nil
	}
}

func (a *app) buildVectorStore(cfg config.VectorConfig) (memory.VectorStore, error) {
	if cfg.Provider != "qdrant" {
		return memory.NewInMemoryStore(), nil
	}
	store, err := qdrant.New(cfg.QdrantAddr)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	a.health.Register("vector", core.HealthFunc(store.Ping))
	return store, nil
}

func buildImageGenerator(cfg config.ImageConfig) llm.ImageGenerator {
	switch cfg.Provider {
	case "openai":
		return openai.New(
			openai.WithAPIKey(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithImageModel(cfg.Model),
		)
	case "mock":
		return &llm.MockImageGenerator{BaseURL: cfg.BaseURL}
	default:
		return nil
	}
}

func (a *app) buildToolCallers(ctx context.Context, cfg config.MCPConfig) ([]workflow.Option, error) {
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var opts []workflow.Option
	for _, name := range names {
		sc := cfg.Servers[name]
		var (
			client *mcp.Client
			err    error
		)
		switch sc.Transport {
		case "stdio":
			client, err = mcp.NewClientWithStdioProtocol(sc.Command, sc.Args, sc.Protocol)
		default:
			client, err = mcp.NewClientWithStreamableHTTPProtocol(sc.URL, sc.Protocol)
		}
		if err != nil {
			return nil, fmt.Errorf("mcp server %q: %w", name, err)
		}
		a.closers = append(a.closers, client.Close)
		guarded := resilience.WrapToolCaller(name, client, policy(a.cfg.Resilience))
		a.health.Register("mcp:"+name, core.HealthFunc(func(ctx context.Context) error {
			if guarded.Breaker().State() == resilience.StateOpen {
				return resilience.ErrOpen
			}
			_, err := client.ListTools(ctx)
			return err
		}))
		opts = append(opts, workflow.WithToolCaller(name, guarded))
	}
	return opts, nil
}

func (a *app) buildKV(ctx context.Context, cfg config.KVConfig) (kv.Store, error) {
	if cfg.Provider != "redis" {
		return kv.NewMemoryStore(), nil
	}
	store, err := kv.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	a.health.Register("kv", core.HealthFunc(store.Ping))
	return store, nil
}

func (a *app) buildAudit(cfg config.AuditConfig) (audit.Store, error) {
	switch cfg.Driver {
	case "memory":
		return audit.NewMemoryStore(), nil
	case "sqlite":
		store, err := audit.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return audit.Nop{}, nil
	}
}

func policy(cfg config.ResilienceConfig) resilience.Policy {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxAttempts
	retry.InitialDelay = cfg.InitialDelay
	retry.MaxDelay = cfg.MaxDelay
	return resilience.Policy{
		Retry: retry,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			OpenTimeout:      cfg.OpenTimeout,
		},
		Timeout: cfg.CallTimeout,
	}
}

// buildSources chains local directories, the remote registry and the
// bundled examples, in that order of precedence.
func buildSources(cfg config.AgentsConfig) agentdef.Source {
	var chain agentdef.ChainSource
	if len(cfg.Dirs) > 0 {
		chain = append(chain, agentdef.NewDirSource(cfg.Dirs...))
	}
	if cfg.RemoteURL != "" {
		chain = append(chain, agentdef.NewHTTPSource(cfg.RemoteURL, agentdef.WithCache(cfg.CacheSize, cfg.CacheTTL)))
	}
	if cfg.Bundled {
		chain = append(chain, agentdef.NewFSSource(bundledAgents, "agents"))
	}
	return chain
}

type registryHealth struct {
	r *registry.Registry
}

func (h registryHealth) Check(context.Context) core.HealthResult {
	n := h.r.Len()
	if n == 0 {
		return core.HealthResult{Status: core.HealthDegraded, Message: "no agents registered"}
	}
	return core.HealthResult{Status: core.HealthHealthy, Message: fmt.Sprintf("%d agents registered", n)}
}
