// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai backs the llm, embed and image steps with the OpenAI API
// (or any compatible endpoint).
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/declagent/pkg/llm"
	"github.com/jllopis/declagent/pkg/memory"
)

// Default models.
const (
	DefaultModel          = "gpt-5-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultImageModel     = "dall-e-3"
	DefaultImageSize      = "1024x1024"
)

// Provider implements llm.Provider, memory.Embedder and llm.ImageGenerator.
type Provider struct {
	client         openai.Client
	model          string
	embeddingModel string
	dimensions     int
	imageModel     string
	requestOpts    []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithEmbeddingModel sets the embedding model and, when dimensions is
// positive, the requested vector size.
func WithEmbeddingModel(model string, dimensions int) Option {
	return func(p *Provider) {
		if model != "" {
			p.embeddingModel = model
		}
		p.dimensions = dimensions
	}
}

// WithImageModel sets the image generation model.
func WithImageModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.imageModel = model
		}
	}
}

// WithBaseURL sets a custom base URL (for Azure OpenAI or proxies).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.requestOpts = append(p.requestOpts, option.WithBaseURL(url))
		}
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) {
		if apiKey != "" {
			p.requestOpts = append(p.requestOpts, option.WithAPIKey(apiKey))
		}
	}
}

// WithRequestOptions appends raw client options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(p *Provider) {
		p.requestOpts = append(p.requestOpts, opts...)
	}
}

// New creates a new OpenAI provider.
// API key is read from OPENAI_API_KEY environment variable by default.
func New(opts ...Option) *Provider {
	p := &Provider{
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
		imageModel:     DefaultImageModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(p.requestOpts...)
	return p
}

// NewWithAPIKey creates a new OpenAI provider with explicit API key.
func NewWithAPIKey(apiKey string, opts ...Option) *Provider {
	opts = append([]Option{WithAPIKey(apiKey)}, opts...)
	return New(opts...)
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	return convertResponse(completion), nil
}

// Embed implements memory.Embedder.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embedding returned no data")
	}
	src := resp.Data[0].Embedding
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out, nil
}

// GenerateImage implements llm.ImageGenerator.
func (p *Provider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	model := req.Model
	if model == "" {
		model = p.imageModel
	}
	size := req.Size
	if size == "" {
		size = DefaultImageSize
	}
	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(model),
		Size:   openai.ImageGenerateParamsSize(size),
		N:      openai.Int(1),
	})
	if err != nil {
		return nil, fmt.Errorf("openai image generation failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai image generation returned no images")
	}
	img := resp.Data[0]
	url := img.URL
	if url == "" && img.B64JSON != "" {
		url = "data:image/png;base64," + img.B64JSON
	}
	return &llm.ImageResponse{URL: url, RevisedPrompt: img.RevisedPrompt}, nil
}

func convertMessage(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case llm.RoleAssistant:
		return openai.AssistantMessage(msg.Content)
	default:
		return openai.UserMessage(msg.Content)
	}
}

func convertResponse(completion *openai.ChatCompletion) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Model: completion.Model,
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) > 0 {
		resp.Content = completion.Choices[0].Message.Content
	}
	return resp
}

var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.ImageGenerator = (*Provider)(nil)
	_ memory.Embedder    = (*Provider)(nil)
)
