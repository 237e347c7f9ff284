// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package interpreter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jllopis/declagent/pkg/audit"
	"github.com/jllopis/declagent/pkg/core"
	"github.com/jllopis/declagent/pkg/errors"
	"github.com/jllopis/declagent/pkg/kv"
	"github.com/jllopis/declagent/pkg/llm"
	"github.com/jllopis/declagent/pkg/registry"
	"github.com/jllopis/declagent/pkg/schema"
	"github.com/jllopis/declagent/pkg/workflow"
)

const pingYAML = `
agent:
  id: ping
  version: 1.0.0
  protocol: declagent/v1
metadata:
  name: Ping
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

func TestInterpretPing(t *testing.T) {
	exec := core.NewExecution()
	out, err := New().Interpret(context.Background(), Request{
		YAML:  []byte(pingYAML),
		Input: map[string]any{"message": "hello"},
		Exec:  exec,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "pong"}, out)
	assert.Equal(t, core.StatusSuccess, exec.Status())
	assert.Empty(t, exec.Error())
	assert.Equal(t, out, exec.Output())
	assert.NotEmpty(t, exec.Logs())
}

func TestInterpretInputValidationFailure(t *testing.T) {
	exec := core.NewExecution()
	_, err := New().Interpret(context.Background(), Request{
		YAML:  []byte(pingYAML),
		Input: map[string]any{},
		Exec:  exec,
	})
	require.Error(t, err)

	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, errors.PhaseInput, ve.Phase)
	assert.Equal(t, []errors.Issue{{Path: "message", Message: "Required"}}, ve.Issues)
	assert.Equal(t, core.StatusError, exec.Status())
	assert.Contains(t, exec.Error(), "Input validation failed")
	assert.Nil(t, exec.Output())
}

func TestInterpretNilInputIsEmptyObject(t *testing.T) {
	_, err := New().Interpret(context.Background(), Request{YAML: []byte(pingYAML)})
	assert.ErrorContains(t, err, "Input validation failed: message: Required")
}

func TestInterpretOutputValidationFailure(t *testing.T) {
	doc := strings.Replace(pingYAML, "response: { type: string }", "response: { type: number }", 1)
	exec := core.NewExecution()
	_, err := New().Interpret(context.Background(), Request{
		YAML:  []byte(doc),
		Input: map[string]any{"message": "hello"},
		Exec:  exec,
	})

	var ve *errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, errors.PhaseOutput, ve.Phase)
	assert.Contains(t, exec.Error(), "Output validation failed")
}

func TestInterpretUnknownStepTypeFailsRegardlessOfInput(t *testing.T) {
	doc := strings.Replace(pingYAML, "type: output-generator", "type: teleport", 1)
	for _, input := range []any{map[string]any{"message": "hello"}, map[string]any{}, "garbage"} {
		exec := core.NewExecution()
		out, err := New().Interpret(context.Background(), Request{YAML: []byte(doc), Input: input, Exec: exec})
		require.Error(t, err)
		assert.Nil(t, out)
		assert.True(t, errors.HasCode(err, errors.CodeUnsupportedStep), "got %v", err)
		assert.Nil(t, exec.Output())
		assert.Equal(t, core.StatusError, exec.Status())
	}
}

func TestInterpretParseFailure(t *testing.T) {
	exec := core.NewExecution()
	_, err := New().Interpret(context.Background(), Request{YAML: []byte("agent: [broken"), Exec: exec})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidDocument))
	assert.Equal(t, err.Error(), exec.Error())
}

func TestInterpretSchemaCompileFailure(t *testing.T) {
	doc := strings.Replace(pingYAML, "response: { type: string }", "response: { type: date }", 1)
	_, err := New().Interpret(context.Background(), Request{
		YAML:  []byte(doc),
		Input: map[string]any{"message": "hello"},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSchemaCompile))
}

func TestInterpretStepErrorIsPropagatedVerbatim(t *testing.T) {
	boom := fmt.Errorf("model is on fire")
	doc := `
agent: { id: chat }
schema:
  input: { type: object, additionalProperties: true }
  output: { type: any }
logic:
  workflow:
    - name: ask
      type: llm
      action:
        prompt: hello
    - name: never
      type: output-generator
      action: unreachable
`
	store := audit.NewMemoryStore()
	exec := core.NewExecution()
	in := New(
		WithDispatcher(workflow.NewDispatcher(workflow.WithProvider("mock", &llm.FailingMockProvider{Err: boom}))),
		WithAuditStore(store),
	)
	_, err := in.Interpret(context.Background(), Request{YAML: []byte(doc), Exec: exec})
	assert.Same(t, boom, err)
	assert.Equal(t, "model is on fire", exec.Error())

	events, err := store.List(context.Background(), audit.Filter{AgentID: "chat"})
	require.NoError(t, err)
	var statuses []string
	for _, ev := range events {
		statuses = append(statuses, ev.Kind+"/"+ev.Step+"/"+ev.Status)
	}
	assert.Equal(t, []string{
		"agent//started",
		"llm/ask/started",
		"llm/ask/failed",
		"agent//failed",
	}, statuses)
}

const chainYAML = `
agent: { id: greeter, version: 2.0.0 }
schema:
  input:
    type: object
    properties:
      name: { type: string, minLength: 1 }
  output:
    type: object
    properties:
      greeting: { type: string }
      tokens: { type: integer }
      cached: { type: boolean }
      tenant: { type: string }
logic:
  variables:
    - name: greeting_prefix
      type: string
      value: Hello
    - name: full
      type: string
      value: $greeting_prefix, $input.name!
    - name: limits
      type: object
      value: { max: 3 }
  workflow:
    - name: ask
      type: llm
      action:
        system: You greet people.
        prompt: Say "$full" in at most $limits.max words.
    - name: remember
      type: kv-set
      action:
        key: last-greeting
        value: $ask.content
    - name: lookup
      type: kv-get
      action:
        key: last-greeting
  output:
    greeting: $lookup.value
    tokens: $ask.usage.total_tokens
    cached: $lookup.found
    tenant: $props.namespace
`

func TestInterpretChainsVariablesAndSteps(t *testing.T) {
	mock := &llm.MockProvider{ChatFunc: func(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1].Content
		return &llm.ChatResponse{Content: "echo: " + last, Usage: llm.Usage{TotalTokens: 7}}, nil
	}}
	store := kv.NewMemoryStore()
	in := New(WithDispatcher(workflow.NewDispatcher(
		workflow.WithProvider("mock", mock),
		workflow.WithKV(store),
	)))

	out, err := in.Interpret(context.Background(), Request{
		YAML:  []byte(chainYAML),
		Input: map[string]any{"name": "Ana"},
		Props: map[string]any{"namespace": "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"greeting": `echo: Say "Hello, Ana!" in at most 3 words.`,
		"tokens":   7,
		"cached":   true,
		"tenant":   "acme",
	}, out)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, llm.RoleSystem, reqs[0].Messages[0].Role)

	_, found, err := store.Get(context.Background(), "acme:last-greeting")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestInterpretWithoutStepsReturnsNil(t *testing.T) {
	doc := `
agent: { id: empty }
schema:
  input: { type: any }
  output: { type: any }
logic: {}
`
	exec := core.NewExecution()
	out, err := New().Interpret(context.Background(), Request{YAML: []byte(doc), Exec: exec})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, core.StatusSuccess, exec.Status())
}

func TestInterpretVariableTypeMismatch(t *testing.T) {
	doc := strings.Replace(pingYAML, "value: pong", "value: 42", 1)
	_, err := New().Interpret(context.Background(), Request{
		YAML:  []byte(doc),
		Input: map[string]any{"message": "hello"},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidDocument))
	assert.Contains(t, err.Error(), `variable "reply" declared as string`)
}

func TestInterpretMissingHandler(t *testing.T) {
	doc := strings.Replace(pingYAML, `type: output-generator
      action:
        response: $reply`, `type: embed
      action:
        text: $input.message`, 1)
	_, err := New().Interpret(context.Background(), Request{
		YAML:  []byte(doc),
		Input: map[string]any{"message": "hello"},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedStep))
	assert.Equal(t, 422, errors.StatusCode(err))
}

func TestInterpretEmitsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	in := New(WithTracer(tp.Tracer("test")))
	_, err := in.Interpret(context.Background(), Request{
		YAML:  []byte(pingYAML),
		Input: map[string]any{"message": "hello"},
	})
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"Interpreter.Step", "Interpreter.Interpret"}, names)
}

func TestConcurrentInterpretationsShareCompiler(t *testing.T) {
	compiler := schema.NewCompiler()
	in := New(WithCompiler(compiler))

	const workers = 12
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := map[string]any{"message": fmt.Sprintf("hello %d", i)}
			if i%3 == 0 {
				input = map[string]any{}
			}
			_, errs[i] = in.Interpret(context.Background(), Request{YAML: []byte(pingYAML), Input: input})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if i%3 == 0 {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 2, compiler.Len())
	assert.Same(t, compiler, in.Compiler())
}

func TestInterpretAgent(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register([]byte(pingYAML))
	require.NoError(t, err)

	exec := core.NewExecution()
	out, err := New().InterpretAgent(context.Background(), reg, "ping", Request{
		Input: map[string]any{"message": "hi"},
		Exec:  exec,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "pong"}, out)

	exec = core.NewExecution()
	_, err = New().InterpretAgent(context.Background(), reg, "missing", Request{Exec: exec})
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.Equal(t, core.StatusError, exec.Status())
}
