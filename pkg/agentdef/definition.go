// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentdef defines the declarative agent document, parses it from
// YAML, and loads documents from pluggable sources.
package agentdef

// Reserved environment names seeded by the interpreter.
const (
	ReservedInput = "input"
	ReservedProps = "props"
)

// StepType selects the handler a workflow step dispatches to.
type StepType string

const (
	StepOutputGenerator StepType = "output-generator"
	StepLLM             StepType = "llm"
	StepEmbed           StepType = "embed"
	StepVectorUpsert    StepType = "vector-upsert"
	StepVectorSearch    StepType = "vector-search"
	StepImage           StepType = "image"
	StepTool            StepType = "tool"
	StepKVGet           StepType = "kv-get"
	StepKVSet           StepType = "kv-set"
)

// StepTypes lists every supported step type in documentation order.
var StepTypes = []StepType{
	StepOutputGenerator,
	StepLLM,
	StepEmbed,
	StepVectorUpsert,
	StepVectorSearch,
	StepImage,
	StepTool,
	StepKVGet,
	StepKVSet,
}

// Known reports whether t is a supported step type.
func (t StepType) Known() bool {
	for _, known := range StepTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Definition is a parsed agent document. Values are treated as immutable
// once parsed.
type Definition struct {
	Agent    Agent    `yaml:"agent" json:"agent"`
	Metadata Metadata `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Schema   Schema   `yaml:"schema" json:"schema"`
	Logic    Logic    `yaml:"logic" json:"logic"`
}

// Agent identifies the document.
type Agent struct {
	ID       string `yaml:"id" json:"id"`
	Version  string `yaml:"version,omitempty" json:"version,omitempty"`
	Protocol string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
}

// Metadata is descriptive information used by listings and routing.
type Metadata struct {
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string `yaml:"category,omitempty" json:"category,omitempty"`
	Route       string `yaml:"route,omitempty" json:"route,omitempty"`
}

// Schema holds the raw input and output schema definitions.
type Schema struct {
	Input  any `yaml:"input" json:"input"`
	Output any `yaml:"output" json:"output"`
}

// Logic is the executable part of the document.
type Logic struct {
	Variables []Variable `yaml:"variables,omitempty" json:"variables,omitempty"`
	Workflow  []Step     `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	// Output is an optional expression for the final result. When nil the
	// last step result is used.
	Output any `yaml:"output,omitempty" json:"output,omitempty"`
}

// Variable is a named value initialised once before the workflow runs.
type Variable struct {
	Name  string `yaml:"name" json:"name"`
	Type  string `yaml:"type,omitempty" json:"type,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// Step is one unit of the linear workflow.
type Step struct {
	Name   string   `yaml:"name" json:"name"`
	Type   StepType `yaml:"type" json:"type"`
	Action any      `yaml:"action,omitempty" json:"action,omitempty"`
}

// ID returns the agent id.
func (d *Definition) ID() string {
	if d == nil {
		return ""
	}
	return d.Agent.ID
}

// Summary is the listing view of a definition.
type Summary struct {
	ID          string `json:"id"`
	Version     string `json:"version,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Route       string `json:"route,omitempty"`
	Steps       int    `json:"steps"`
}

// Summary returns the listing view of d.
func (d *Definition) Summary() Summary {
	return Summary{
		ID:          d.Agent.ID,
		Version:     d.Agent.Version,
		Name:        d.Metadata.Name,
		Description: d.Metadata.Description,
		Category:    d.Metadata.Category,
		Route:       d.Metadata.Route,
		Steps:       len(d.Logic.Workflow),
	}
}
