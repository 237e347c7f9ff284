// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jllopis/declagent/pkg/errors"
)

// CLIError wraps a taxonomy error with a hint for the operator.
type CLIError struct {
	Err  error
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(err error, hint string) *CLIError {
	return &CLIError{Err: err, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	msg := e.Err.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

func (e *CLIError) Unwrap() error { return e.Err }

func newConfigError(err error, configPath string) *CLIError {
	hint := "check your configuration values"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(err, hint)
}

func newNotFoundError(err error, id string) *CLIError {
	return NewCLIError(err, fmt.Sprintf("pass a YAML file path or add %q to agents.dirs", id))
}

func newInvalidArgumentError(arg, reason string) *CLIError {
	return NewCLIError(
		errors.Newf(errors.CodeInvalidInput, "invalid argument: %s", reason).WithContext("argument", arg),
		"run 'declagent help' for usage information",
	)
}

// errorPayload is the --json form of a failure.
type errorPayload struct {
	Code   string         `json:"code"`
	Name   string         `json:"name"`
	Error  string         `json:"message"`
	Phase  string         `json:"phase,omitempty"`
	Issues []errors.Issue `json:"issues,omitempty"`
	Hint   string         `json:"hint,omitempty"`
}

func describeError(err error) errorPayload {
	p := errorPayload{Code: "UNKNOWN", Error: err.Error()}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		p.Hint = cliErr.Hint
		if cliErr.Err != nil {
			p.Error = cliErr.Err.Error()
		}
	}
	var ve *errors.ValidationError
	var e *errors.Error
	switch {
	case errors.As(err, &ve):
		p.Code = string(ve.Code())
		p.Phase = string(ve.Phase)
		p.Issues = ve.Issues
	case errors.As(err, &e):
		p.Code = string(e.Code)
	}
	p.Name = formatErrorCode(errors.ErrorCode(p.Code))
	return p
}

// printError prints the error with appropriate formatting.
func printError(w io.Writer, err error, asJSON bool) {
	p := describeError(err)
	if asJSON {
		raw, _ := json.Marshal(map[string]any{"error": p})
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", p.Code, p.Error)
	for _, issue := range p.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
	if p.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", p.Hint)
	}
}

// exitCode maps failures to process exit codes: 2 for caller mistakes,
// 3 for broken agent documents, 1 otherwise.
func exitCode(err error) int {
	switch errors.StatusCode(err) {
	case 400, 404:
		return 2
	case 422:
		return 3
	default:
		return 1
	}
}

// formatErrorCode returns a user-friendly name for error codes.
func formatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeInvalidDocument:
		return "Invalid Agent Document"
	case errors.CodeSchemaCompile:
		return "Schema Compile Error"
	case errors.CodeValidation:
		return "Validation Failed"
	case errors.CodeUnsupportedStep:
		return "Unsupported Step"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeToolFailure:
		return "Tool Failure"
	case errors.CodeLLMError:
		return "LLM Error"
	case errors.CodeMemoryError:
		return "Memory Error"
	default:
		return string(code)
	}
}
