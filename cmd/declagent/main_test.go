// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/declagent/pkg/errors"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeAgent(t *testing.T, dir, name, doc string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

const greetAgent = `
agent: { id: greet, version: 0.1.0 }
metadata: { name: Greet, description: Greets by name }
schema:
  input:
    type: object
    properties:
      name: { type: string, minLength: 1 }
    required: [name]
  output: { type: string }
logic:
  workflow:
    - name: greeting
      type: output-generator
      action: "Hello, $input.name! ($tenant)"
  output: $greeting
`

func TestRunBundledAgent(t *testing.T) {
	out, _, err := execute(t, "", "run", "ping", "--input", `{"message":"hi"}`)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{"response": "pong"}, got)
}

func TestRunFileWithPropsAndStdin(t *testing.T) {
	path := writeAgent(t, t.TempDir(), "greet.yaml", strings.Replace(greetAgent, "($tenant)", "($props.tenant)", 1))

	out, _, err := execute(t, `{"name":"Ana"}`, "run", path, "--input", "-", "--prop", "tenant=acme")
	require.NoError(t, err)
	assert.Equal(t, "\"Hello, Ana! (acme)\"\n", out)
}

func TestRunJSONEnvelope(t *testing.T) {
	out, _, err := execute(t, "", "--json", "run", "ping", "--input", `{"message":"hi"}`)
	require.NoError(t, err)

	var got runResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, strings.HasPrefix(got.RunID, "run-"))
	assert.Equal(t, "ping", got.Agent)
	assert.Equal(t, map[string]any{"response": "pong"}, got.Output)
	assert.NotEmpty(t, got.Logs)
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	broken := writeAgent(t, dir, "broken.yaml", "agent: { id: broken }\nlogic: {}\n")

	cases := []struct {
		name string
		args []string
		code errors.ErrorCode
		exit int
	}{
		{"input validation", []string{"run", "ping", "--input", `{}`}, errors.CodeValidation, 2},
		{"unknown agent", []string{"run", "nope"}, errors.CodeNotFound, 2},
		{"bad input json", []string{"run", "ping", "--input", `{`}, errors.CodeInvalidInput, 2},
		{"bad prop", []string{"run", "ping", "--prop", "novalue"}, errors.CodeInvalidInput, 2},
		{"invalid document", []string{"run", broken}, errors.CodeInvalidDocument, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, "", tc.args...)
			require.Error(t, err)
			assert.Equal(t, string(tc.code), describeError(err).Code)
			assert.Equal(t, tc.exit, exitCode(err))
		})
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeAgent(t, dir, "greet.yaml", greetAgent)

	out, _, err := execute(t, "", "validate", good, "ping")
	require.NoError(t, err, out)
	assert.Contains(t, out, "$tenant is not defined")
	assert.Contains(t, out, "Overall: warn")

	bad := writeAgent(t, dir, "bad.yaml", strings.Replace(greetAgent, "output: { type: string }", "output: { type: date }", 1))
	out, _, err = execute(t, "", "--json", "validate", bad)
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))

	var result validateResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "error", result.Overall)
	require.Len(t, result.Agents, 1)
	var failed []string
	for _, c := range result.Agents[0].Checks {
		if c.Status == "error" {
			failed = append(failed, c.Name)
		}
	}
	assert.Equal(t, []string{"schema.output"}, failed)
}

func TestAgentsList(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "greet.yaml", greetAgent)

	out, _, err := execute(t, "", "--json", "--set", "agents.dirs=[\""+dir+"\"]", "agents", "list")
	require.NoError(t, err)

	var result agentsListResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	var ids []string
	for _, a := range result.Agents {
		ids = append(ids, a.ID)
	}
	assert.Contains(t, ids, "greet")
	assert.Contains(t, ids, "ping")

	out, _, err = execute(t, "", "agents", "list", "--category", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "ping")
	assert.NotContains(t, out, "greet")
}

func TestConfigErrorHint(t *testing.T) {
	_, _, err := execute(t, "", "--set", "kv.provider=etcd", "agents", "list")
	require.Error(t, err)
	p := describeError(err)
	assert.Equal(t, string(errors.CodeInvalidInput), p.Code)
	assert.Equal(t, "check your configuration values", p.Hint)
}

func TestPrintError(t *testing.T) {
	err := errors.NewValidationError(errors.PhaseInput, []errors.Issue{{Path: "message", Message: "Required"}})

	var text bytes.Buffer
	printError(&text, err, false)
	assert.Contains(t, text.String(), "Error [VALIDATION_FAILED]")
	assert.Contains(t, text.String(), "message")

	var raw bytes.Buffer
	printError(&raw, NewCLIError(err, "fix the input"), true)
	var payload struct {
		Error errorPayload `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw.Bytes(), &payload))
	assert.Equal(t, "input", payload.Error.Phase)
	assert.Equal(t, "fix the input", payload.Error.Hint)
	assert.Equal(t, "Validation Failed", payload.Error.Name)
	require.Len(t, payload.Error.Issues, 1)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New(errors.CodeLLMError, "down", nil)))
	assert.Equal(t, 2, exitCode(errors.Newf(errors.CodeNotFound, "missing")))
	assert.Equal(t, 3, exitCode(errors.New(errors.CodeUnsupportedStep, "x", nil)))
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "declagent dev"))
}

func TestRunWithScriptedProvider(t *testing.T) {
	path := writeAgent(t, t.TempDir(), "ask.yaml", `
agent: { id: ask, version: 0.1.0 }
schema:
  input: { type: object, properties: { q: { type: string } } }
  output: { type: string }
logic:
  workflow:
    - name: ask
      type: llm
      action:
        prompt: $input.q
  output: $ask.content
`)
	args := []string{
		"--set", `llm.providers.script={"type":"mock","responses":["first","second"]}`,
		"--set", "llm.default=script",
		"run", path, "--input", `{"q":"hi"}`,
	}
	out, _, err := execute(t, "", args...)
	require.NoError(t, err)
	assert.Equal(t, "\"first\"\n", out)
}
