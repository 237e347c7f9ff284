// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jllopis/declagent/pkg/errors"
)

// Issue is a field-level validation failure.
type Issue = errors.Issue

// Validator is the compiled, directly invocable form of a schema definition.
// Validators are immutable and safe for concurrent use.
type Validator struct {
	root node
	key  string
	path string
}

// Validate checks value and returns the issues found, or nil when valid.
func (v *Validator) Validate(value any) []Issue {
	if v == nil || v.root == nil {
		return nil
	}
	return v.root.check(value, "", nil)
}

// Path returns the declaration path the validator was compiled for.
func (v *Validator) Path() string { return v.path }

// Key returns the cache key of the validator.
func (v *Validator) Key() string { return v.key }

type node interface {
	check(value any, path string, issues []Issue) []Issue
}

type objectNode struct {
	names       []string
	props       map[string]node
	required    map[string]bool
	passthrough bool
	extra       node
}

func (n *objectNode) check(value any, path string, issues []Issue) []Issue {
	obj, ok := asMap(value)
	if !ok {
		return append(issues, mismatch(path, "object", value))
	}
	for _, name := range n.names {
		field, present := obj[name]
		if !present {
			if n.required[name] {
				issues = append(issues, Issue{Path: join(path, name), Message: "Required"})
			}
			continue
		}
		if field == nil && !n.required[name] {
			continue
		}
		issues = n.props[name].check(field, join(path, name), issues)
	}
	for _, name := range n.requiredUndeclared() {
		if _, present := obj[name]; !present {
			issues = append(issues, Issue{Path: join(path, name), Message: "Required"})
		}
	}
	if n.passthrough && n.extra == nil {
		return issues
	}
	var unknown []string
	for key := range obj {
		if _, declared := n.props[key]; !declared {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		if n.extra != nil {
			issues = n.extra.check(obj[key], join(path, key), issues)
			continue
		}
		issues = append(issues, Issue{Path: join(path, key), Message: "Unrecognized key"})
	}
	return issues
}

func (n *objectNode) requiredUndeclared() []string {
	var out []string
	for name := range n.required {
		if _, declared := n.props[name]; !declared {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

type arrayNode struct {
	items    node
	minItems int
	maxItems int
}

func (n *arrayNode) check(value any, path string, issues []Issue) []Issue {
	items, ok := asSlice(value)
	if !ok {
		return append(issues, mismatch(path, "array", value))
	}
	if n.minItems >= 0 && len(items) < n.minItems {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("Array must contain at least %d element(s)", n.minItems)})
	}
	if n.maxItems >= 0 && len(items) > n.maxItems {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("Array must contain at most %d element(s)", n.maxItems)})
	}
	for i, item := range items {
		issues = n.items.check(item, path+"["+strconv.Itoa(i)+"]", issues)
	}
	return issues
}

type stringNode struct {
	minLength int
	maxLength int
}

func (n *stringNode) check(value any, path string, issues []Issue) []Issue {
	s, ok := value.(string)
	if !ok {
		return append(issues, mismatch(path, "string", value))
	}
	length := utf8.RuneCountInString(s)
	if n.minLength >= 0 && length < n.minLength {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("String must contain at least %d character(s)", n.minLength)})
	}
	if n.maxLength >= 0 && length > n.maxLength {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("String must contain at most %d character(s)", n.maxLength)})
	}
	return issues
}

type numberNode struct {
	integer bool
	min     *float64
	max     *float64
}

func (n *numberNode) check(value any, path string, issues []Issue) []Issue {
	f, ok := asNumber(value)
	if !ok {
		expected := "number"
		if n.integer {
			expected = "integer"
		}
		return append(issues, mismatch(path, expected, value))
	}
	if n.integer && (math.IsInf(f, 0) || math.Trunc(f) != f) {
		return append(issues, Issue{Path: path, Message: "Expected integer, received float"})
	}
	if n.min != nil && f < *n.min {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("Number must be greater than or equal to %v", *n.min)})
	}
	if n.max != nil && f > *n.max {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf("Number must be less than or equal to %v", *n.max)})
	}
	return issues
}

type booleanNode struct{}

func (booleanNode) check(value any, path string, issues []Issue) []Issue {
	if _, ok := value.(bool); !ok {
		return append(issues, mismatch(path, "boolean", value))
	}
	return issues
}

type anyNode struct{}

func (anyNode) check(_ any, _ string, issues []Issue) []Issue { return issues }

type literalNode struct {
	value any
}

func (n *literalNode) check(value any, path string, issues []Issue) []Issue {
	if !literalEqual(n.value, value) {
		return append(issues, Issue{Path: path, Message: fmt.Sprintf("Invalid literal value, expected %s", formatLiteral(n.value))})
	}
	return issues
}

type unionNode struct {
	values []any
}

func (n *unionNode) check(value any, path string, issues []Issue) []Issue {
	for _, candidate := range n.values {
		if literalEqual(candidate, value) {
			return issues
		}
	}
	options := make([]string, len(n.values))
	for i, candidate := range n.values {
		options[i] = formatLiteral(candidate)
	}
	return append(issues, Issue{
		Path:    path,
		Message: fmt.Sprintf("Invalid enum value. Expected %s, received %s", strings.Join(options, " | "), formatLiteral(value)),
	})
}

func mismatch(path, expected string, value any) Issue {
	if value == nil {
		return Issue{Path: path, Message: "Required"}
	}
	return Issue{Path: path, Message: fmt.Sprintf("Expected %s, received %s", expected, describe(value))}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func literalEqual(expected, actual any) bool {
	switch e := expected.(type) {
	case string:
		a, ok := actual.(string)
		return ok && a == e
	case bool:
		a, ok := actual.(bool)
		return ok && a == e
	default:
		ef, eok := asNumber(expected)
		af, aok := asNumber(actual)
		return eok && aok && ef == af
	}
}

func formatLiteral(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return fmt.Sprintf("%v", v)
}
