// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow decodes step actions into a closed set of typed payloads
// and dispatches them to the configured collaborators.
package workflow

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/errors"
)

// Action is the typed payload of one workflow step. The set of
// implementations is closed; see Decode.
type Action interface {
	StepType() agentdef.StepType
	validate() error
}

// OutputAction returns its resolved value unchanged.
type OutputAction struct {
	Value any
}

// ChatMessage is one message of an llm action.
type ChatMessage struct {
	Role    string `mapstructure:"role"`
	Content string `mapstructure:"content"`
}

// LLMAction runs a chat completion.
type LLMAction struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	System      string        `mapstructure:"system"`
	Prompt      string        `mapstructure:"prompt"`
	Messages    []ChatMessage `mapstructure:"messages"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// EmbedAction embeds text into a vector.
type EmbedAction struct {
	Text string `mapstructure:"text"`
}

// VectorUpsertAction embeds text and stores it in a collection.
type VectorUpsertAction struct {
	Collection string         `mapstructure:"collection"`
	ID         string         `mapstructure:"id"`
	Text       string         `mapstructure:"text"`
	Metadata   map[string]any `mapstructure:"metadata"`
}

// VectorSearchAction finds the nearest stored texts to a query.
type VectorSearchAction struct {
	Collection string  `mapstructure:"collection"`
	Query      string  `mapstructure:"query"`
	Limit      int     `mapstructure:"limit"`
	Threshold  float64 `mapstructure:"threshold"`
}

// ImageAction generates an image.
type ImageAction struct {
	Prompt string `mapstructure:"prompt"`
	Model  string `mapstructure:"model"`
	Size   string `mapstructure:"size"`
}

// ToolAction calls a tool on an MCP server.
type ToolAction struct {
	Server    string         `mapstructure:"server"`
	Tool      string         `mapstructure:"tool"`
	Arguments map[string]any `mapstructure:"arguments"`
}

// KVGetAction reads a key.
type KVGetAction struct {
	Key       string `mapstructure:"key"`
	Namespace string `mapstructure:"namespace"`
}

// KVSetAction writes a key. TTL accepts a duration string ("10m") or a
// number of seconds.
type KVSetAction struct {
	Key       string        `mapstructure:"key"`
	Namespace string        `mapstructure:"namespace"`
	Value     any           `mapstructure:"value"`
	TTL       time.Duration `mapstructure:"ttl"`
}

func (OutputAction) StepType() agentdef.StepType       { return agentdef.StepOutputGenerator }
func (LLMAction) StepType() agentdef.StepType          { return agentdef.StepLLM }
func (EmbedAction) StepType() agentdef.StepType        { return agentdef.StepEmbed }
func (VectorUpsertAction) StepType() agentdef.StepType { return agentdef.StepVectorUpsert }
func (VectorSearchAction) StepType() agentdef.StepType { return agentdef.StepVectorSearch }
func (ImageAction) StepType() agentdef.StepType        { return agentdef.StepImage }
func (ToolAction) StepType() agentdef.StepType         { return agentdef.StepTool }
func (KVGetAction) StepType() agentdef.StepType        { return agentdef.StepKVGet }
func (KVSetAction) StepType() agentdef.StepType        { return agentdef.StepKVSet }

func (OutputAction) validate() error { return nil }

func (a LLMAction) validate() error {
	if strings.TrimSpace(a.Prompt) == "" && len(a.Messages) == 0 {
		return fmt.Errorf("prompt or messages is required")
	}
	for i, m := range a.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)
		}
	}
	return nil
}

func (a EmbedAction) validate() error {
	return required("text", a.Text)
}

func (a VectorUpsertAction) validate() error {
	if err := required("collection", a.Collection); err != nil {
		return err
	}
	return required("text", a.Text)
}

func (a VectorSearchAction) validate() error {
	if err := required("collection", a.Collection); err != nil {
		return err
	}
	if a.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return required("query", a.Query)
}

func (a ImageAction) validate() error {
	return required("prompt", a.Prompt)
}

func (a ToolAction) validate() error {
	return required("tool", a.Tool)
}

func (a KVGetAction) validate() error {
	return required("key", a.Key)
}

func (a KVSetAction) validate() error {
	if a.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	return required("key", a.Key)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// Decode converts a resolved action into its typed payload. Unknown step
// types fail with UNSUPPORTED_STEP; malformed payloads with INVALID_DOCUMENT.
func Decode(stepType agentdef.StepType, resolved any) (Action, error) {
	var action Action
	switch stepType {
	case agentdef.StepOutputGenerator:
		return OutputAction{Value: resolved}, nil
	case agentdef.StepLLM:
		action = &LLMAction{}
	case agentdef.StepEmbed:
		action = &EmbedAction{}
	case agentdef.StepVectorUpsert:
		action = &VectorUpsertAction{}
	case agentdef.StepVectorSearch:
		action = &VectorSearchAction{}
	case agentdef.StepImage:
		action = &ImageAction{}
	case agentdef.StepTool:
		action = &ToolAction{}
	case agentdef.StepKVGet:
		action = &KVGetAction{}
	case agentdef.StepKVSet:
		action = &KVSetAction{}
	default:
		return nil, unsupported(stepType)
	}

	if resolved == nil {
		resolved = map[string]any{}
	}
	if _, ok := resolved.(map[string]any); !ok {
		return nil, errors.Newf(errors.CodeInvalidDocument, "%s action must be a mapping, got %T", stepType, resolved).
			WithContext("type", string(stepType))
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           action,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			secondsToDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "build action decoder", err)
	}
	if err := dec.Decode(resolved); err != nil {
		return nil, errors.New(errors.CodeInvalidDocument, fmt.Sprintf("decode %s action: %v", stepType, err), err).
			WithContext("type", string(stepType))
	}

	action = deref(action)
	if err := action.validate(); err != nil {
		return nil, errors.New(errors.CodeInvalidDocument, fmt.Sprintf("%s action: %v", stepType, err), err).
			WithContext("type", string(stepType))
	}
	return action, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHookFunc reads bare numbers decoded into a
// time.Duration as seconds.
func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		v := reflect.ValueOf(data)
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(v.Int()) * time.Second, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(v.Uint()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(v.Float() * float64(time.Second)), nil
		}
		return data, nil
	}
}

func deref(a Action) Action {
	switch v := a.(type) {
	case *LLMAction:
		return *v
	case *EmbedAction:
		return *v
	case *VectorUpsertAction:
		return *v
	case *VectorSearchAction:
		return *v
	case *ImageAction:
		return *v
	case *ToolAction:
		return *v
	case *KVGetAction:
		return *v
	case *KVSetAction:
		return *v
	default:
		return a
	}
}

func unsupported(stepType agentdef.StepType) error {
	return errors.Newf(errors.CodeUnsupportedStep, "unsupported step type %q", stepType).
		WithContext("type", string(stepType))
}
