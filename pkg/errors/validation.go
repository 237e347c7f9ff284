// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// Phase identifies where a validation failure happened.
type Phase string

const (
	PhaseInput  Phase = "input"
	PhaseOutput Phase = "output"
)

// Issue is a single field-level validation failure.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationError reports that a value failed its compiled schema.
type ValidationError struct {
	Phase  Phase   `json:"phase"`
	Issues []Issue `json:"issues"`
}

// NewValidationError builds a validation error for the given phase.
func NewValidationError(phase Phase, issues []Issue) *ValidationError {
	return &ValidationError{Phase: phase, Issues: issues}
}

// Error renders "Input validation failed: a: Required; b: ...".
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Prefix())
	if len(e.Issues) == 0 {
		return b.String()
	}
	b.WriteString(": ")
	for i, issue := range e.Issues {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(issue.String())
	}
	return b.String()
}

// Prefix returns the human readable phase prefix.
func (e *ValidationError) Prefix() string {
	switch e.Phase {
	case PhaseInput:
		return "Input validation failed"
	case PhaseOutput:
		return "Output validation failed"
	default:
		return fmt.Sprintf("%s validation failed", e.Phase)
	}
}

// Code returns the taxonomy code for validation failures.
func (e *ValidationError) Code() ErrorCode {
	return CodeValidation
}

// StatusCode maps bad input to 400 and a bad agent result to 502.
func (e *ValidationError) StatusCode() int {
	if e.Phase == PhaseOutput {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}
