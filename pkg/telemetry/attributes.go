// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry configures OpenTelemetry tracing and metrics, the
// trace-aware slog handler, and the attribute keys used by interpreter spans.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for agent interpretation telemetry.
const (
	// Agent attributes
	AttrAgentID      = "declagent.agent.id"
	AttrAgentVersion = "declagent.agent.version"
	AttrRunID        = "declagent.run.id"
	AttrOutcome      = "declagent.outcome"
	AttrPhase        = "declagent.phase"

	// Step attributes
	AttrStepName   = "declagent.step.name"
	AttrStepType   = "declagent.step.type"
	AttrStepIndex  = "declagent.step.index"
	AttrStepStatus = "declagent.step.status"

	// Error attributes
	AttrErrorCode = "error.code"
	AttrComponent = "component"

	// LLM attributes (gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
)

// AgentAttributes returns the attributes identifying one interpretation.
func AgentAttributes(agentID, version, runID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
	}
	if version != "" {
		attrs = append(attrs, attribute.String(AttrAgentVersion, version))
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrRunID, runID))
	}
	return attrs
}

// StepAttributes returns the attributes of a workflow step span.
func StepAttributes(name, stepType string, index int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStepName, name),
		attribute.String(AttrStepType, stepType),
		attribute.Int(AttrStepIndex, index),
	}
}

// LLMUsageAttributes returns token usage attributes. Zero counts are omitted.
func LLMUsageAttributes(model, provider string, inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	return attrs
}
