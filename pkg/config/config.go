// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads declagent settings from defaults, a YAML file, an
// optional profile file, DECLAGENT_ environment variables and --set
// overrides, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/declagent/pkg/errors"
	"github.com/jllopis/declagent/pkg/kv"
	"github.com/jllopis/declagent/pkg/telemetry"
)

// EnvPrefix is the prefix of environment overrides. DECLAGENT_LOG_LEVEL
// maps to log.level.
const EnvPrefix = "DECLAGENT_"

type Config struct {
	Log        LogConfig        `koanf:"log"`
	Telemetry  telemetry.Config `koanf:"telemetry"`
	LLM        LLMConfig        `koanf:"llm"`
	Embedder   EmbedderConfig   `koanf:"embedder"`
	Vector     VectorConfig     `koanf:"vector"`
	Image      ImageConfig      `koanf:"image"`
	MCP        MCPConfig        `koanf:"mcp"`
	KV         KVConfig         `koanf:"kv"`
	Agents     AgentsConfig     `koanf:"agents"`
	Audit      AuditConfig      `koanf:"audit"`
	Server     ServerConfig     `koanf:"server"`
	Resilience ResilienceConfig `koanf:"resilience"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// LLMConfig declares the chat providers llm steps can select by name.
type LLMConfig struct {
	Default   string                    `koanf:"default"`
	Providers map[string]ProviderConfig `koanf:"providers"`
}

// ProviderConfig configures one named chat provider.
type ProviderConfig struct {
	Type    string `koanf:"type"` // ollama, openai, anthropic, gemini, qwen, mock
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`

	// Responses scripts a mock provider. Replies cycle through the list.
	Responses []string `koanf:"responses"`
}

type EmbedderConfig struct {
	Provider   string `koanf:"provider"` // hash, ollama, openai, gemini
	Model      string `koanf:"model"`
	BaseURL    string `koanf:"base_url"`
	APIKey     string `koanf:"api_key"`
	Dimensions int    `koanf:"dimensions"`
}

type VectorConfig struct {
	Provider   string `koanf:"provider"` // memory, qdrant
	QdrantAddr string `koanf:"qdrant_addr"`
}

type ImageConfig struct {
	Provider string `koanf:"provider"` // "", openai, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type MCPConfig struct {
	Servers map[string]MCPServerConfig `koanf:"servers"`
}

// MCPServerConfig describes how to reach one MCP server used by tool steps.
type MCPServerConfig struct {
	Transport string   `koanf:"transport"` // stdio, http
	Command   string   `koanf:"command"`
	Args      []string `koanf:"args"`
	URL       string   `koanf:"url"`
	Protocol  string   `koanf:"protocol"`
}

type KVConfig struct {
	Provider string         `koanf:"provider"` // memory, redis
	Redis    kv.RedisConfig `koanf:"redis"`
}

// AgentsConfig lists where agent definitions are resolved from.
type AgentsConfig struct {
	Dirs      []string      `koanf:"dirs"`
	RemoteURL string        `koanf:"remote_url"`
	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
	Bundled   bool          `koanf:"bundled"`
}

type AuditConfig struct {
	Driver string `koanf:"driver"` // none, memory, sqlite
	DSN    string `koanf:"dsn"`
}

// ResilienceConfig guards LLM providers and MCP servers. LLM calls are
// retried; tool calls only go through the circuit breaker.
type ResilienceConfig struct {
	MaxAttempts      int           `koanf:"max_attempts"`
	InitialDelay     time.Duration `koanf:"initial_delay"`
	MaxDelay         time.Duration `koanf:"max_delay"`
	FailureThreshold int           `koanf:"failure_threshold"` // 0 disables the breaker
	OpenTimeout      time.Duration `koanf:"open_timeout"`
	CallTimeout      time.Duration `koanf:"call_timeout"` // 0 means no per-call deadline
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
	MCP  bool   `koanf:"mcp"`
}

// Options controls a Load.
type Options struct {
	// Path is the base YAML file. Empty means defaults and env only.
	Path string
	// Profile selects an overlay file named <base>.<profile><ext>.
	Profile string
	// Overrides are key=value pairs applied last. Values are decoded as
	// JSON when possible and kept as strings otherwise.
	Overrides []string
}

var defaults = map[string]any{
	"log.level":                     "info",
	"log.format":                    "text",
	"telemetry.exporter":            telemetry.ExporterNone,
	"telemetry.otlp_endpoint":       "localhost:4317",
	"telemetry.otlp_insecure":       true,
	"telemetry.metric_interval":     30 * time.Second,
	"llm.default":                   "ollama",
	"llm.providers.ollama.type":     "ollama",
	"llm.providers.ollama.model":    "qwen2.5-coder:7b-instruct-q5_K_M",
	"llm.providers.ollama.base_url": "http://localhost:11434",
	"embedder.provider":             "hash",
	"embedder.dimensions":           256,
	"vector.provider":               "memory",
	"vector.qdrant_addr":            "localhost:6334",
	"kv.provider":                   "memory",
	"kv.redis.addr":                 "localhost:6379",
	"kv.redis.prefix":               "declagent:",
	"agents.cache_size":             128,
	"agents.cache_ttl":              5 * time.Minute,
	"agents.bundled":                true,
	"audit.driver":                  "none",
	"audit.dsn":                     "declagent-audit.db",
	"server.addr":                   ":8080",
	"server.mcp":                    false,
	"resilience.max_attempts":       3,
	"resilience.initial_delay":      200 * time.Millisecond,
	"resilience.max_delay":          5 * time.Second,
	"resilience.failure_threshold":  5,
	"resilience.open_timeout":       30 * time.Second,
	"resilience.call_timeout":       0,
}

// Load reads the file at path on top of the defaults.
func Load(path string) (*Config, error) {
	return LoadWith(Options{Path: path})
}

// LoadWith builds a fresh koanf instance per call and layers every source.
func LoadWith(opts Options) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	for _, path := range Files(opts.Path, opts.Profile) {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "failed to load config file", err).
				WithContext("path", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, err
	}

	for _, override := range opts.Overrides {
		key, value, err := ParseOverride(override)
		if err != nil {
			return nil, err
		}
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Files returns the config files Load reads for path and profile. A missing
// profile file is skipped; a missing base file is not.
func Files(path, profile string) []string {
	if path == "" {
		return nil
	}
	files := []string{path}
	if profile != "" {
		overlay := ProfilePath(path, profile)
		if _, err := os.Stat(overlay); err == nil {
			files = append(files, overlay)
		}
	}
	return files
}

// ProfilePath returns the overlay path for profile next to path.
func ProfilePath(path, profile string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + profile + ext
}

// ParseOverride splits a key=value override.
func ParseOverride(s string) (string, any, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, errors.Newf(errors.CodeInvalidInput, "invalid override %q, expected key=value", s)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	return key, value, nil
}

// Validate checks the closed option sets.
func (c *Config) Validate() error {
	checks := []struct {
		field string
		value string
		allow []string
	}{
		{"log.format", c.Log.Format, []string{"text", "json"}},
		{"telemetry.exporter", c.Telemetry.Exporter, []string{telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterOTLP}},
		{"embedder.provider", c.Embedder.Provider, []string{"hash", "ollama", "openai", "gemini", "qwen"}},
		{"vector.provider", c.Vector.Provider, []string{"memory", "qdrant"}},
		{"image.provider", c.Image.Provider, []string{"", "openai", "mock"}},
		{"kv.provider", c.KV.Provider, []string{"memory", "redis"}},
		{"audit.driver", c.Audit.Driver, []string{"none", "memory", "sqlite"}},
	}
	for _, check := range checks {
		if !contains(check.allow, check.value) {
			return invalid(check.field, check.value, check.allow)
		}
	}

	if c.Resilience.MaxAttempts < 1 {
		return errors.Newf(errors.CodeInvalidInput, "resilience.max_attempts must be at least 1, got %d", c.Resilience.MaxAttempts)
	}

	providerTypes := []string{"ollama", "openai", "anthropic", "gemini", "qwen", "mock"}
	for name, p := range c.LLM.Providers {
		if !contains(providerTypes, p.Type) {
			return invalid("llm.providers."+name+".type", p.Type, providerTypes)
		}
	}
	if c.LLM.Default != "" && len(c.LLM.Providers) > 0 {
		if _, ok := c.LLM.Providers[c.LLM.Default]; !ok {
			return errors.Newf(errors.CodeInvalidInput, "llm.default %q is not a configured provider", c.LLM.Default)
		}
	}

	for name, s := range c.MCP.Servers {
		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				return errors.Newf(errors.CodeInvalidInput, "mcp.servers.%s: stdio transport requires command", name)
			}
		case "http":
			if s.URL == "" {
				return errors.Newf(errors.CodeInvalidInput, "mcp.servers.%s: http transport requires url", name)
			}
		default:
			return invalid("mcp.servers."+name+".transport", s.Transport, []string{"stdio", "http"})
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func invalid(field, value string, allow []string) error {
	return errors.New(errors.CodeInvalidInput,
		fmt.Sprintf("%s: unsupported value %q (allowed: %s)", field, value, strings.Join(allow, ", ")), nil).
		WithContext("field", field)
}
