// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package interpreter runs declarative agent documents: it parses the YAML,
// validates the caller input, initialises variables, executes the workflow
// steps in order and validates the final output.
package interpreter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/audit"
	"github.com/jllopis/declagent/pkg/core"
	"github.com/jllopis/declagent/pkg/errors"
	"github.com/jllopis/declagent/pkg/expr"
	"github.com/jllopis/declagent/pkg/schema"
	"github.com/jllopis/declagent/pkg/telemetry"
	"github.com/jllopis/declagent/pkg/workflow"
)

// Phase names the interpreter state an interpretation is in.
type Phase string

const (
	PhaseParsing          Phase = "parsing"
	PhaseInputValidation  Phase = "input-validation"
	PhaseVariableInit     Phase = "variable-init"
	PhaseStepExecution    Phase = "step-execution"
	PhaseOutputValidation Phase = "output-validation"
	PhaseDone             Phase = "done"
	PhaseFailed           Phase = "failed"
)

// Schema paths used for compilation and cache keys.
const (
	InputSchemaPath  = "schema.input"
	OutputSchemaPath = "schema.output"
)

// Request is one interpretation call.
type Request struct {
	// YAML is the agent document. It is parsed fresh on every call.
	YAML []byte
	// Input is validated against schema.input and exposed as $input.
	// A nil input is treated as an empty object.
	Input any
	// Props are caller properties exposed as $props and passed to handlers.
	Props map[string]any
	// Exec receives progress logs and the final output or error.
	Exec core.ExecutionContext
}

// Resolver returns the raw document registered under an agent id.
// *registry.Registry implements it.
type Resolver interface {
	Resolve(ctx context.Context, id string) ([]byte, error)
}

// Interpreter executes agent documents. It is safe for concurrent use;
// the schema compiler cache is the only state shared across calls.
type Interpreter struct {
	compiler   *schema.Compiler
	dispatcher *workflow.Dispatcher
	logger     *slog.Logger
	audit      audit.Store
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithCompiler shares a schema compiler (and its cache) with the interpreter.
func WithCompiler(c *schema.Compiler) Option {
	return func(in *Interpreter) {
		if c != nil {
			in.compiler = c
		}
	}
}

// WithDispatcher sets the step dispatcher.
func WithDispatcher(d *workflow.Dispatcher) Option {
	return func(in *Interpreter) {
		if d != nil {
			in.dispatcher = d
		}
	}
}

// WithLogger sets the interpreter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Interpreter) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// WithAuditStore records step and interpretation events in store.
func WithAuditStore(store audit.Store) Option {
	return func(in *Interpreter) {
		if store != nil {
			in.audit = store
		}
	}
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(in *Interpreter) {
		in.metrics = m
	}
}

// WithTracer sets the tracer used for interpretation and step spans.
func WithTracer(t trace.Tracer) Option {
	return func(in *Interpreter) {
		if t != nil {
			in.tracer = t
		}
	}
}

// New creates an Interpreter. Without options it owns a fresh compiler and
// a dispatcher that only runs output-generator steps.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		compiler:   schema.NewCompiler(),
		dispatcher: workflow.NewDispatcher(),
		logger:     slog.Default(),
		audit:      audit.Nop{},
		tracer:     otel.Tracer("declagent/interpreter"),
	}
	if m, err := telemetry.NewMetrics(nil); err == nil {
		in.metrics = m
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Compiler returns the schema compiler used by the interpreter.
func (in *Interpreter) Compiler() *schema.Compiler {
	return in.compiler
}

// InterpretAgent resolves the document for id through r and interprets it.
// req.YAML is ignored.
func (in *Interpreter) InterpretAgent(ctx context.Context, r Resolver, id string, req Request) (any, error) {
	raw, err := r.Resolve(ctx, id)
	if err != nil {
		exec := req.Exec
		if exec != nil {
			exec.SetError(err.Error())
		}
		return nil, err
	}
	req.YAML = raw
	return in.Interpret(ctx, req)
}

// run is the state of one interpretation.
type run struct {
	id      string
	def     *agentdef.Definition
	env     expr.Env
	exec    core.ExecutionContext
	props   map[string]any
	phase   Phase
	last    any
	started time.Time
}

func (r *run) agentID() string {
	return r.def.ID()
}

// Interpret runs one agent document against req.Input. On success the
// validated output is returned and stored in req.Exec; on failure the error
// message is stored in req.Exec before the error is returned. Errors from
// step handlers are returned unchanged.
func (in *Interpreter) Interpret(ctx context.Context, req Request) (out any, err error) {
	exec := req.Exec
	if exec == nil {
		exec = core.Discard{}
	}
	ctx, runID := core.EnsureRunID(ctx)
	r := &run{
		id:      runID,
		exec:    exec,
		props:   req.Props,
		phase:   PhaseParsing,
		started: time.Now().UTC(),
	}
	if r.props == nil {
		r.props = map[string]any{}
	}

	ctx, span := in.tracer.Start(ctx, "Interpreter.Interpret",
		trace.WithAttributes(attribute.String(telemetry.AttrRunID, runID)),
	)
	defer span.End()

	defer func() {
		in.finish(ctx, span, r, out, err)
	}()

	r.def, err = agentdef.Parse(req.YAML)
	if err != nil {
		return nil, err
	}
	ctx = core.WithAgentID(ctx, r.agentID())
	span.SetAttributes(telemetry.AgentAttributes(r.agentID(), r.def.Agent.Version, runID)...)
	in.record(ctx, r, audit.Event{Kind: audit.KindAgent, Status: audit.StatusStarted, StartedAt: r.started})
	exec.Log(fmt.Sprintf("agent %s parsed (%d steps)", r.agentID(), len(r.def.Logic.Workflow)))

	r.phase = PhaseInputValidation
	inputValidator, err := in.compiler.Compile(r.def.Schema.Input, InputSchemaPath)
	if err != nil {
		return nil, err
	}
	outputValidator, err := in.compiler.Compile(r.def.Schema.Output, OutputSchemaPath)
	if err != nil {
		return nil, err
	}
	input := req.Input
	if input == nil {
		input = map[string]any{}
	}
	if issues := inputValidator.Validate(input); len(issues) > 0 {
		return nil, errors.NewValidationError(errors.PhaseInput, issues)
	}

	r.phase = PhaseVariableInit
	r.env = expr.Env{
		agentdef.ReservedInput: input,
		agentdef.ReservedProps: r.props,
	}
	if err := in.initVariables(r); err != nil {
		return nil, err
	}

	r.phase = PhaseStepExecution
	for i, step := range r.def.Logic.Workflow {
		if err := in.runStep(ctx, r, i, step); err != nil {
			return nil, err
		}
	}

	r.phase = PhaseOutputValidation
	result := r.last
	if r.def.Logic.Output != nil {
		result = normalize(expr.Resolve(r.def.Logic.Output, r.env))
	}
	if issues := outputValidator.Validate(result); len(issues) > 0 {
		return nil, errors.NewValidationError(errors.PhaseOutput, issues)
	}

	r.phase = PhaseDone
	return result, nil
}

func (in *Interpreter) initVariables(r *run) error {
	for i, v := range r.def.Logic.Variables {
		value := normalize(expr.Resolve(v.Value, r.env))
		if !matchesType(v.Type, value) {
			return errors.Newf(errors.CodeInvalidDocument,
				"variable %q declared as %s but initialised with %s", v.Name, v.Type, describe(value)).
				WithContext("path", fmt.Sprintf("logic.variables[%d]", i))
		}
		r.env[v.Name] = value
	}
	if n := len(r.def.Logic.Variables); n > 0 {
		r.exec.Log(fmt.Sprintf("initialised %d variables", n))
	}
	return nil
}

func (in *Interpreter) runStep(ctx context.Context, r *run, index int, step agentdef.Step) error {
	stepType := string(step.Type)
	stepCtx, span := in.tracer.Start(ctx, "Interpreter.Step",
		trace.WithAttributes(telemetry.StepAttributes(step.Name, stepType, index)...),
	)
	defer span.End()

	started := time.Now()
	in.record(stepCtx, r, audit.Event{Step: step.Name, Kind: stepType, Status: audit.StatusStarted, StartedAt: started.UTC()})

	resolved := expr.Resolve(step.Action, r.env)
	result, err := in.dispatcher.Dispatch(stepCtx, step.Type, resolved, workflow.Call{
		Step:  step.Name,
		Props: r.props,
		Exec:  r.exec,
	})
	elapsed := time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.metrics.RecordStep(stepCtx, stepType, audit.StatusFailed, elapsed)
		in.record(stepCtx, r, audit.Event{
			Step: step.Name, Kind: stepType, Status: audit.StatusFailed,
			Error: err.Error(), StartedAt: started.UTC(), FinishedAt: time.Now().UTC(),
		})
		in.logger.DebugContext(stepCtx, "step failed",
			slog.String("agent_id", r.agentID()),
			slog.String("step", step.Name),
			slog.String("type", stepType),
			slog.String("error", err.Error()),
		)
		return err
	}

	result = normalize(result)
	r.env[step.Name] = result
	r.last = result
	in.metrics.RecordStep(stepCtx, stepType, audit.StatusCompleted, elapsed)
	in.record(stepCtx, r, audit.Event{
		Step: step.Name, Kind: stepType, Status: audit.StatusCompleted,
		Output: result, StartedAt: started.UTC(), FinishedAt: time.Now().UTC(),
	})
	r.exec.Log(fmt.Sprintf("step %s (%s) completed in %s", step.Name, stepType, elapsed.Round(time.Microsecond)))
	return nil
}

func (in *Interpreter) finish(ctx context.Context, span trace.Span, r *run, out any, err error) {
	agentID := r.agentID()
	if err != nil {
		failedIn := r.phase
		r.phase = PhaseFailed
		r.exec.SetError(err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(telemetry.AttrPhase, string(failedIn)))
		in.metrics.RecordInterpretation(ctx, agentID, telemetry.OutcomeFailure)
		in.metrics.RecordError(ctx, err, "interpreter")
		in.record(ctx, r, audit.Event{
			Kind: audit.KindAgent, Status: audit.StatusFailed,
			Error: err.Error(), StartedAt: r.started, FinishedAt: time.Now().UTC(),
		})
		in.logger.WarnContext(ctx, "agent interpretation failed",
			slog.String("agent_id", agentID),
			slog.String("run_id", r.id),
			slog.String("phase", string(failedIn)),
			slog.String("error", err.Error()),
		)
		return
	}

	r.exec.SetOutput(out)
	span.SetStatus(codes.Ok, "")
	in.metrics.RecordInterpretation(ctx, agentID, telemetry.OutcomeSuccess)
	in.record(ctx, r, audit.Event{
		Kind: audit.KindAgent, Status: audit.StatusCompleted,
		Output: out, StartedAt: r.started, FinishedAt: time.Now().UTC(),
	})
	in.logger.DebugContext(ctx, "agent interpretation completed",
		slog.String("agent_id", agentID),
		slog.String("run_id", r.id),
		slog.Duration("duration", time.Since(r.started)),
	)
}

// record stores an audit event for a parsed document. Store failures are
// logged and never fail the interpretation.
func (in *Interpreter) record(ctx context.Context, r *run, ev audit.Event) {
	if r.def == nil {
		return
	}
	ev.AgentID = r.agentID()
	ev.RunID = r.id
	if err := in.audit.Record(ctx, ev); err != nil {
		in.logger.WarnContext(ctx, "audit record failed",
			slog.String("agent_id", ev.AgentID),
			slog.String("step", ev.Step),
			slog.String("error", err.Error()),
		)
	}
}
