// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/declagent/pkg/errors"
)

// Metric names recorded by the interpreter.
const (
	MetricInterpretations = "declagent.interpretations.total"
	MetricStepDuration    = "declagent.step.duration"
	MetricErrors          = "declagent.errors.total"
)

// Interpretation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics records interpretation outcomes, step latency and error codes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	interpretations metric.Int64Counter
	stepDuration    metric.Float64Histogram
	errorCounter    metric.Int64Counter
}

// NewMetrics creates the interpreter instruments on meter. A nil meter uses
// the global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter("declagent/interpreter")
	}

	interpretations, err := meter.Int64Counter(
		MetricInterpretations,
		metric.WithDescription("Agent interpretations by agent and outcome"),
	)
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram(
		MetricStepDuration,
		metric.WithDescription("Workflow step duration by step type and status"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		MetricErrors,
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		interpretations: interpretations,
		stepDuration:    stepDuration,
		errorCounter:    errorCounter,
	}, nil
}

// RecordInterpretation counts one finished interpretation.
func (m *Metrics) RecordInterpretation(ctx context.Context, agentID, outcome string) {
	if m == nil {
		return
	}
	m.interpretations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordStep records the duration of one workflow step.
func (m *Metrics) RecordStep(ctx context.Context, stepType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String(AttrStepType, stepType),
		attribute.String(AttrStepStatus, status),
	))
}

// RecordError counts err under its taxonomy code. Untyped errors count as
// INTERNAL_ERROR.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrErrorCode, string(ErrorCode(err))),
		attribute.String(AttrComponent, component),
	))
}

// ErrorCode returns the taxonomy code carried by err.
func ErrorCode(err error) errors.ErrorCode {
	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		return ve.Code()
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return errors.CodeInternal
}
