// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package qwen provides an Alibaba Cloud Qwen provider.
// Qwen speaks the OpenAI-compatible API through DashScope, so the provider
// reuses the openai client with a DashScope endpoint.
package qwen

import (
	"github.com/openai/openai-go/option"

	"github.com/jllopis/declagent/pkg/llm"
	"github.com/jllopis/declagent/providers/openai"
)

const (
	// DefaultBaseURL is the default DashScope API endpoint.
	DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/"
	// DefaultModel is used when neither the provider nor the step picks one.
	DefaultModel = "qwen-plus"
	// DefaultEmbeddingModel is the DashScope text embedding model.
	DefaultEmbeddingModel = "text-embedding-v3"
)

type config struct {
	baseURL        string
	model          string
	embeddingModel string
	dimensions     int
	requestOpts    []option.RequestOption
}

// Option configures the Provider.
type Option func(*config)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(c *config) {
		if model != "" {
			c.model = model
		}
	}
}

// WithEmbeddingModel sets the embedding model and dimensions.
func WithEmbeddingModel(model string, dimensions int) Option {
	return func(c *config) {
		if model != "" {
			c.embeddingModel = model
		}
		c.dimensions = dimensions
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithRequestOptions appends raw openai-go request options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) {
		c.requestOpts = append(c.requestOpts, opts...)
	}
}

// Provider is an OpenAI-compatible provider pointed at DashScope.
type Provider struct {
	*openai.Provider
	model   string
	baseURL string
}

// New creates a new Qwen provider.
func New(apiKey string, opts ...Option) *Provider {
	c := &config{
		baseURL:        DefaultBaseURL,
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	inner := openai.New(
		openai.WithAPIKey(apiKey),
		openai.WithBaseURL(c.baseURL),
		openai.WithModel(c.model),
		openai.WithEmbeddingModel(c.embeddingModel, c.dimensions),
		openai.WithRequestOptions(c.requestOpts...),
	)
	return &Provider{Provider: inner, model: c.model, baseURL: c.baseURL}
}

// Model returns the default chat model.
func (p *Provider) Model() string { return p.model }

// BaseURL returns the endpoint the provider talks to.
func (p *Provider) BaseURL() string { return p.baseURL }

// Ensure Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)
