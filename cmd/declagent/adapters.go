// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/declagent/pkg/errors"
)

// Adapter describes a backend that can be selected through configuration.
type Adapter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Steps       []string `json:"steps,omitempty"`
	ConfigKeys  []string `json:"config_keys,omitempty"`
	Docs        string   `json:"docs,omitempty"`
}

// adaptersRegistry is the catalog of known adapters.
var adaptersRegistry = []Adapter{
	// LLM providers
	{
		Name:        "ollama",
		Type:        "llm",
		Description: "Local LLM inference with Ollama",
		Steps:       []string{"llm-call"},
		ConfigKeys:  []string{"llm.providers.<name>.type=ollama", "llm.providers.<name>.base_url", "llm.providers.<name>.model"},
		Docs:        "https://ollama.com",
	},
	{
		Name:        "openai",
		Type:        "llm",
		Description: "OpenAI chat models, or any OpenAI-compatible endpoint via base_url",
		Steps:       []string{"llm-call"},
		ConfigKeys:  []string{"llm.providers.<name>.type=openai", "llm.providers.<name>.api_key", "llm.providers.<name>.model"},
		Docs:        "https://platform.openai.com/docs",
	},
	{
		Name:        "anthropic",
		Type:        "llm",
		Description: "Anthropic Claude models",
		Steps:       []string{"llm-call"},
		ConfigKeys:  []string{"llm.providers.<name>.type=anthropic", "llm.providers.<name>.api_key", "llm.providers.<name>.model"},
		Docs:        "https://docs.anthropic.com",
	},
	{
		Name:        "gemini",
		Type:        "llm",
		Description: "Google Gemini models",
		Steps:       []string{"llm-call"},
		ConfigKeys:  []string{"llm.providers.<name>.type=gemini", "llm.providers.<name>.api_key", "llm.providers.<name>.model"},
		Docs:        "https://ai.google.dev/gemini-api/docs",
	},
	{
		Name:        "qwen",
		Type:        "llm",
		Description: "Alibaba Qwen models through DashScope compatible mode",
		Steps:       []string{"llm-call"},
		ConfigKeys:  []string{"llm.providers.<name>.type=qwen", "llm.providers.<name>.api_key", "llm.providers.<name>.model"},
		Docs:        "https://help.aliyun.com/zh/model-studio/",
	},
	{
		Name:        "mock",
		Type:        "llm",
		Description: "Mock LLM for testing (returns canned responses)",
		Steps:       []string{"llm-call"},
		ConfigKeys:  []string{"llm.providers.<name>.type=mock"},
		Docs:        "pkg/llm/mock.go",
	},

	// Embedders
	{
		Name:        "hash",
		Type:        "embedder",
		Description: "Deterministic feature-hashing embedder, no network",
		Steps:       []string{"memory-store", "vector-search"},
		ConfigKeys:  []string{"embedder.provider=hash", "embedder.dimensions"},
		Docs:        "pkg/memory/hash_embedder.go",
	},
	{
		Name:        "ollama-embed",
		Type:        "embedder",
		Description: "Ollama embeddings API",
		Steps:       []string{"memory-store", "vector-search"},
		ConfigKeys:  []string{"embedder.provider=ollama", "embedder.base_url", "embedder.model"},
		Docs:        "https://ollama.com",
	},
	{
		Name:        "openai-embed",
		Type:        "embedder",
		Description: "OpenAI embeddings, also used for gemini and qwen embedder providers",
		Steps:       []string{"memory-store", "vector-search"},
		ConfigKeys:  []string{"embedder.provider=openai|gemini|qwen", "embedder.api_key", "embedder.model", "embedder.dimensions"},
		Docs:        "https://platform.openai.com/docs/guides/embeddings",
	},

	// Vector stores
	{
		Name:        "memory",
		Type:        "vector",
		Description: "In-memory cosine similarity store (non-persistent)",
		Steps:       []string{"memory-store", "vector-search"},
		ConfigKeys:  []string{"vector.provider=memory"},
		Docs:        "pkg/memory/inmemory.go",
	},
	{
		Name:        "qdrant",
		Type:        "vector",
		Description: "Qdrant vector database over gRPC",
		Steps:       []string{"memory-store", "vector-search"},
		ConfigKeys:  []string{"vector.provider=qdrant", "vector.qdrant_addr"},
		Docs:        "https://qdrant.tech/documentation/",
	},

	// Key-value stores
	{
		Name:        "kv-memory",
		Type:        "kv",
		Description: "In-process key-value store (non-persistent)",
		Steps:       []string{"kv-get", "kv-set"},
		ConfigKeys:  []string{"kv.provider=memory"},
		Docs:        "pkg/kv/kv.go",
	},
	{
		Name:        "redis",
		Type:        "kv",
		Description: "Redis-backed key-value store",
		Steps:       []string{"kv-get", "kv-set"},
		ConfigKeys:  []string{"kv.provider=redis", "kv.redis.addr", "kv.redis.password", "kv.redis.db", "kv.redis.prefix"},
		Docs:        "https://redis.io/docs/",
	},

	// Image generation
	{
		Name:        "openai-images",
		Type:        "image",
		Description: "OpenAI image generation",
		Steps:       []string{"image-generation"},
		ConfigKeys:  []string{"image.provider=openai", "image.api_key", "image.model"},
		Docs:        "https://platform.openai.com/docs/guides/images",
	},

	// MCP transports
	{
		Name:        "mcp-stdio",
		Type:        "mcp",
		Description: "MCP server via stdio (subprocess)",
		Steps:       []string{"tool-call"},
		ConfigKeys:  []string{"mcp.servers.<name>.transport=stdio", "mcp.servers.<name>.command", "mcp.servers.<name>.args"},
		Docs:        "https://modelcontextprotocol.io",
	},
	{
		Name:        "mcp-http",
		Type:        "mcp",
		Description: "MCP server via streamable HTTP",
		Steps:       []string{"tool-call"},
		ConfigKeys:  []string{"mcp.servers.<name>.transport=http", "mcp.servers.<name>.url"},
		Docs:        "https://modelcontextprotocol.io",
	},

	// Audit
	{
		Name:        "audit-memory",
		Type:        "audit",
		Description: "In-memory run audit log",
		ConfigKeys:  []string{"audit.driver=memory"},
		Docs:        "pkg/audit/store.go",
	},
	{
		Name:        "sqlite",
		Type:        "audit",
		Description: "SQLite run audit log (pure Go driver)",
		ConfigKeys:  []string{"audit.driver=sqlite", "audit.dsn"},
		Docs:        "pkg/audit/sqlite.go",
	},

	// Telemetry
	{
		Name:        "otel-stdout",
		Type:        "telemetry",
		Description: "OpenTelemetry export to stdout",
		ConfigKeys:  []string{"telemetry.exporter=stdout"},
		Docs:        "https://opentelemetry.io/docs/languages/go/",
	},
	{
		Name:        "otel-otlp",
		Type:        "telemetry",
		Description: "OpenTelemetry export via OTLP gRPC",
		ConfigKeys:  []string{"telemetry.exporter=otlp", "telemetry.otlp_endpoint", "telemetry.otlp_insecure"},
		Docs:        "https://opentelemetry.io/docs/languages/go/",
	},
}

type adaptersListResult struct {
	Adapters []Adapter `json:"adapters"`
	Total    int       `json:"total"`
}

func adaptersCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapters",
		Short: "Show the backends each step type can use",
	}
	cmd.AddCommand(adaptersListCmd(flags), adaptersInfoCmd(flags))
	return cmd
}

func adaptersListCmd(flags *rootFlags) *cobra.Command {
	var filterType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			adapters := filterAdapters(filterType)
			result := adaptersListResult{Adapters: adapters, Total: len(adapters)}

			out := cmd.OutOrStdout()
			if flags.JSON {
				return printJSON(out, result)
			}
			if len(adapters) == 0 {
				fmt.Fprintln(out, "No adapters found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tDESCRIPTION")
			fmt.Fprintln(w, "----\t----\t-----------")
			for _, a := range adapters {
				fmt.Fprintf(w, "%s\t%s\t%s\n", a.Name, a.Type, a.Description)
			}
			w.Flush()

			fmt.Fprintf(out, "\nTotal: %d adapters\n", result.Total)
			fmt.Fprintln(out, "\nUse 'declagent adapters info <name>' for configuration details.")
			return nil
		},
	}
	cmd.Flags().StringVar(&filterType, "type", "", "filter by type: llm, embedder, vector, kv, image, mcp, audit, telemetry")
	return cmd
}

func adaptersInfoCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info <adapter-name>",
		Short: "Show configuration keys for an adapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, ok := findAdapter(args[0])
			if !ok {
				return NewCLIError(
					errors.Newf(errors.CodeNotFound, "adapter %q not found", args[0]),
					"run 'declagent adapters list' to see available adapters",
				)
			}

			out := cmd.OutOrStdout()
			if flags.JSON {
				return printJSON(out, found)
			}
			fmt.Fprintf(out, "Adapter: %s\n", found.Name)
			fmt.Fprintf(out, "Type: %s\n", found.Type)
			fmt.Fprintf(out, "Description: %s\n", found.Description)
			if len(found.Steps) > 0 {
				fmt.Fprintf(out, "Steps: %v\n", found.Steps)
			}
			fmt.Fprintln(out)
			if len(found.ConfigKeys) > 0 {
				fmt.Fprintln(out, "Configuration:")
				for _, k := range found.ConfigKeys {
					fmt.Fprintf(out, "  • %s\n", k)
				}
				fmt.Fprintln(out)
			}
			if found.Docs != "" {
				fmt.Fprintf(out, "Documentation: %s\n", found.Docs)
			}
			return nil
		},
	}
}

func filterAdapters(kind string) []Adapter {
	if kind == "" {
		return adaptersRegistry
	}
	filtered := make([]Adapter, 0)
	for _, a := range adaptersRegistry {
		if a.Type == kind {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func findAdapter(name string) (Adapter, bool) {
	for _, a := range adaptersRegistry {
		if a.Name == name {
			return a, true
		}
	}
	return Adapter{}, false
}
