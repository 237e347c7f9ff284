// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the typed error taxonomy shared by the schema
// compiler, the step dispatcher and the interpreter.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies errors for callers, logs and transport mapping.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidDocument indicates a malformed agent document.
	CodeInvalidDocument ErrorCode = "INVALID_DOCUMENT"

	// CodeSchemaCompile indicates a schema definition could not be compiled.
	CodeSchemaCompile ErrorCode = "SCHEMA_COMPILE"

	// CodeValidation indicates a value failed its compiled schema.
	CodeValidation ErrorCode = "VALIDATION_FAILED"

	// CodeUnsupportedStep indicates an unknown step type or a step type
	// without a configured handler.
	CodeUnsupportedStep ErrorCode = "UNSUPPORTED_STEP"

	// CodeInvalidInput indicates the caller supplied an unusable request.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeMemoryError indicates a vector or key/value store error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// Error is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type Error struct {
	Code       ErrorCode
	Message    string
	Err        error
	Context    map[string]any
	StatusCode int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Err     string         `json:"error,omitempty"`
		Context map[string]any `json:"context,omitempty"`
	}{
		Code:    string(e.Code),
		Message: e.Message,
		Context: e.Context,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new Error with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *Error {
	return &Error{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]any),
		StatusCode: codeToStatusCode(code),
	}
}

// Newf creates a new Error without a cause using a format string.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HasCode reports whether err or any error it wraps is an *Error with code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// Is, As and Unwrap re-export the standard helpers so callers importing this
// package do not need a second errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error { return stderrors.Unwrap(err) }

// StatusCode maps any error to an HTTP status code.
// Errors outside the taxonomy are treated as step failures (500).
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve.StatusCode()
	}
	var e *Error
	if stderrors.As(err, &e) && e.StatusCode != 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeInvalidDocument, CodeSchemaCompile, CodeUnsupportedStep:
		return http.StatusUnprocessableEntity
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
