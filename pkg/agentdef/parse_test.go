// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agentdef

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/declagent/pkg/errors"
)

const pingYAML = `
agent:
  id: ping
  version: 1.0.0
  protocol: declagent/v1
metadata:
  name: Ping
  description: Answers pong
  category: demo
  route: /api/agents/ping
schema:
  input:
    type: object
    properties:
      message: { type: string }
    required: [message]
  output:
    type: object
    properties:
      response: { type: string }
    required: [response]
logic:
  variables:
    - name: reply
      type: string
      value: pong
  workflow:
    - name: respond
      type: output-generator
      action:
        response: $reply
`

func TestParsePing(t *testing.T) {
	def, err := Parse([]byte(pingYAML))
	require.NoError(t, err)

	assert.Equal(t, "ping", def.ID())
	assert.Equal(t, "declagent/v1", def.Agent.Protocol)
	assert.Equal(t, "/api/agents/ping", def.Metadata.Route)
	require.Len(t, def.Logic.Variables, 1)
	assert.Equal(t, Variable{Name: "reply", Type: "string", Value: "pong"}, def.Logic.Variables[0])
	require.Len(t, def.Logic.Workflow, 1)
	assert.Equal(t, StepOutputGenerator, def.Logic.Workflow[0].Type)
	assert.Equal(t, map[string]any{"response": "$reply"}, def.Logic.Workflow[0].Action)
	assert.Nil(t, def.Logic.Output)

	input, ok := def.Schema.Input.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", input["type"])

	sum := def.Summary()
	assert.Equal(t, "Ping", sum.Name)
	assert.Equal(t, 1, sum.Steps)
}

func TestParseStructuralErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		code errors.ErrorCode
	}{
		{"empty", "   ", errors.CodeInvalidDocument},
		{"malformed yaml", "agent: [unclosed", errors.CodeInvalidDocument},
		{"scalar document", "just text", errors.CodeInvalidDocument},
		{"missing logic", strings.Replace(pingYAML, "logic:", "other:", 1), errors.CodeInvalidDocument},
		{"missing schema", "agent: {id: a}\nlogic: {}\n", errors.CodeInvalidDocument},
		{"missing agent id", strings.Replace(pingYAML, "  id: ping\n", "", 1), errors.CodeInvalidDocument},
		{"missing output schema", `
agent: {id: a}
schema: {input: {type: any}}
logic: {}
`, errors.CodeInvalidDocument},
		{"step without type", `
agent: {id: a}
schema: {input: {type: any}, output: {type: any}}
logic:
  workflow:
    - name: one
`, errors.CodeInvalidDocument},
		{"step without name", `
agent: {id: a}
schema: {input: {type: any}, output: {type: any}}
logic:
  workflow:
    - type: llm
`, errors.CodeInvalidDocument},
		{"duplicate step", `
agent: {id: a}
schema: {input: {type: any}, output: {type: any}}
logic:
  workflow:
    - {name: one, type: output-generator}
    - {name: one, type: output-generator}
`, errors.CodeInvalidDocument},
		{"step shadows variable", `
agent: {id: a}
schema: {input: {type: any}, output: {type: any}}
logic:
  variables: [{name: x, value: 1}]
  workflow: [{name: x, type: output-generator}]
`, errors.CodeInvalidDocument},
		{"reserved variable", `
agent: {id: a}
schema: {input: {type: any}, output: {type: any}}
logic:
  variables: [{name: input, value: 1}]
`, errors.CodeInvalidDocument},
		{"unsupported variable type", `
agent: {id: a}
schema: {input: {type: any}, output: {type: any}}
logic:
  variables: [{name: when, type: date}]
`, errors.CodeInvalidDocument},
		{"unknown step type", `
agent: {id: a}
schema: {input: {type: any}, output: {type: any}}
logic:
  workflow: [{name: go, type: teleport}]
`, errors.CodeUnsupportedStep},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pingYAML), 0o600))

	def, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ping", def.ID())

	_, err = ParseFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	_, err = ParseFile(" ")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestStepTypeKnown(t *testing.T) {
	for _, st := range StepTypes {
		assert.True(t, st.Known(), st)
	}
	assert.False(t, StepType("teleport").Known())
}
