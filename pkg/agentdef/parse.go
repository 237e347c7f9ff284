// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agentdef

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/declagent/pkg/errors"
)

var requiredSections = []string{"agent", "schema", "logic"}

var variableTypes = map[string]bool{
	"":        true,
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"object":  true,
	"array":   true,
	"any":     true,
	"unknown": true,
}

// Parse decodes a YAML agent document and validates its structure.
func Parse(data []byte) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New(errors.CodeInvalidDocument, "empty agent document", nil)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.New(errors.CodeInvalidDocument, "parse agent yaml: "+err.Error(), err)
	}
	if raw == nil {
		return nil, errors.New(errors.CodeInvalidDocument, "agent document must be a mapping", nil)
	}
	for _, section := range requiredSections {
		if v, ok := raw[section]; !ok || v == nil {
			return nil, errors.Newf(errors.CodeInvalidDocument, "missing required section %q", section).
				WithContext("section", section)
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.New(errors.CodeInvalidDocument, "decode agent document: "+err.Error(), err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseFile reads and parses an agent document from disk.
func ParseFile(path string) (*Definition, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New(errors.CodeInvalidInput, "agent path is required", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("agent file %s not found", path), err)
		}
		return nil, errors.New(errors.CodeInternal, "read agent file", err)
	}
	return Parse(data)
}

// Validate checks the structural rules of a definition: identity, schema
// presence, unique variable and step names, and known step types.
func (d *Definition) Validate() error {
	if d == nil {
		return errors.New(errors.CodeInvalidDocument, "agent definition is nil", nil)
	}
	if strings.TrimSpace(d.Agent.ID) == "" {
		return errors.New(errors.CodeInvalidDocument, "agent.id is required", nil)
	}
	if d.Schema.Input == nil {
		return invalid("schema.input", "schema.input is required")
	}
	if d.Schema.Output == nil {
		return invalid("schema.output", "schema.output is required")
	}

	names := make(map[string]string)
	for i, v := range d.Logic.Variables {
		where := fmt.Sprintf("logic.variables[%d]", i)
		if strings.TrimSpace(v.Name) == "" {
			return invalid(where, where+" missing name")
		}
		if v.Name == ReservedInput || v.Name == ReservedProps {
			return invalid(where, fmt.Sprintf("variable %q shadows a reserved name", v.Name))
		}
		if _, dup := names[v.Name]; dup {
			return invalid(where, fmt.Sprintf("duplicate variable %q", v.Name))
		}
		if !variableTypes[v.Type] {
			return invalid(where, fmt.Sprintf("variable %q has unsupported type %q", v.Name, v.Type))
		}
		names[v.Name] = "variable"
	}

	for i, step := range d.Logic.Workflow {
		where := fmt.Sprintf("logic.workflow[%d]", i)
		if strings.TrimSpace(step.Name) == "" {
			return invalid(where, where+" missing name")
		}
		if step.Type == "" {
			return invalid(where, fmt.Sprintf("step %q missing type", step.Name))
		}
		if step.Name == ReservedInput || step.Name == ReservedProps {
			return invalid(where, fmt.Sprintf("step %q shadows a reserved name", step.Name))
		}
		if kind, dup := names[step.Name]; dup {
			return invalid(where, fmt.Sprintf("step %q collides with %s of the same name", step.Name, kind))
		}
		if !step.Type.Known() {
			return errors.Newf(errors.CodeUnsupportedStep, "unsupported step type %q", step.Type).
				WithContext("step", step.Name).
				WithContext("type", string(step.Type))
		}
		names[step.Name] = "step"
	}
	return nil
}

func invalid(where, msg string) error {
	return errors.New(errors.CodeInvalidDocument, msg, nil).WithContext("path", where)
}
