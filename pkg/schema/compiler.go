// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema compiles declarative schema definitions into validators.
//
// A definition is a JSON-like map with a "type" tag (object, array, string,
// number, integer, boolean, any, unknown, enum) and type-specific
// constraints. Compiled validators are cached per Compiler by a hash of the
// serialized definition plus the declaration path, so structurally identical
// definitions at the same path compile once and return the same *Validator.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jllopis/declagent/pkg/errors"
)

// Compiler compiles and caches validators. The zero value is not usable;
// create one with NewCompiler and share it across interpretations.
type Compiler struct {
	cache sync.Map // cache key -> *Validator
}

// NewCompiler returns an empty compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile returns the validator for def declared at path. Malformed
// definitions fail with an *errors.Error carrying CodeSchemaCompile.
func (c *Compiler) Compile(def any, path string) (*Validator, error) {
	key, err := cacheKey(def, path)
	if err != nil {
		return nil, err
	}
	if cached, ok := c.cache.Load(key); ok {
		return cached.(*Validator), nil
	}
	root, err := compileNode(def, path)
	if err != nil {
		return nil, err
	}
	// First compile wins; a concurrent compile of the same key returns the
	// instance that was stored first.
	actual, _ := c.cache.LoadOrStore(key, &Validator{root: root, key: key, path: path})
	return actual.(*Validator), nil
}

// Len reports the number of cached validators.
func (c *Compiler) Len() int {
	n := 0
	c.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Clear drops every cached validator.
func (c *Compiler) Clear() {
	c.cache.Clear()
}

func cacheKey(def any, path string) (string, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return "", compileErr(path, "schema definition is not serializable", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]) + "@" + path, nil
}

func compileErr(path, msg string, cause error) *errors.Error {
	return errors.New(errors.CodeSchemaCompile, fmt.Sprintf("%s: %s", path, msg), cause).
		WithContext("path", path)
}

func compileNode(def any, path string) (node, error) {
	m, ok := asMap(def)
	if !ok {
		return nil, compileErr(path, "schema definition must be an object", nil)
	}
	rawType, present := m["type"]
	if !present {
		return nil, compileErr(path, "schema definition is missing type", nil)
	}
	typ, ok := rawType.(string)
	if !ok {
		return nil, compileErr(path, "schema type must be a string", nil)
	}

	switch typ {
	case "object":
		return compileObject(m, path)
	case "array":
		return compileArray(m, path)
	case "string":
		return compileString(m, path)
	case "number", "integer":
		return compileNumber(m, path, typ == "integer")
	case "boolean":
		return booleanNode{}, nil
	case "any", "unknown":
		return anyNode{}, nil
	case "enum":
		return compileEnum(m, path)
	default:
		if _, hasEnum := enumValues(m); hasEnum {
			return compileEnum(m, path)
		}
		return nil, compileErr(path, fmt.Sprintf("unsupported schema type %q", typ), nil)
	}
}

func compileObject(m map[string]any, path string) (node, error) {
	n := &objectNode{
		props:    make(map[string]node),
		required: make(map[string]bool),
	}
	if raw, ok := m["properties"]; ok && raw != nil {
		props, ok := asMap(raw)
		if !ok {
			return nil, compileErr(path, "object properties must be an object", nil)
		}
		for name := range props {
			n.names = append(n.names, name)
		}
		sort.Strings(n.names)
		for _, name := range n.names {
			child, err := compileNode(props[name], path+".properties."+name)
			if err != nil {
				return nil, err
			}
			n.props[name] = child
		}
	}

	switch extra := m["additionalProperties"].(type) {
	case nil:
	case bool:
		n.passthrough = extra
	default:
		em, ok := asMap(extra)
		if !ok {
			return nil, compileErr(path, "additionalProperties must be a boolean or a schema", nil)
		}
		n.passthrough = true
		if _, typed := em["type"]; typed {
			child, err := compileNode(em, path+".additionalProperties")
			if err != nil {
				return nil, err
			}
			n.extra = child
		}
	}

	if raw, ok := m["required"]; ok && raw != nil {
		list, ok := asSlice(raw)
		if !ok {
			return nil, compileErr(path, "object required must be a list", nil)
		}
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				return nil, compileErr(path, "object required entries must be strings", nil)
			}
			if _, declared := n.props[name]; !declared && !n.passthrough {
				return nil, compileErr(path, fmt.Sprintf("required property %q is not declared", name), nil)
			}
			n.required[name] = true
		}
	}
	return n, nil
}

func compileArray(m map[string]any, path string) (node, error) {
	rawItems, ok := m["items"]
	if !ok || rawItems == nil {
		return nil, compileErr(path, "array schema requires items", nil)
	}
	items, err := compileNode(rawItems, path+".items")
	if err != nil {
		return nil, err
	}
	minItems, err := bound(m, "minItems", path)
	if err != nil {
		return nil, err
	}
	maxItems, err := bound(m, "maxItems", path)
	if err != nil {
		return nil, err
	}
	return &arrayNode{items: items, minItems: minItems, maxItems: maxItems}, nil
}

func compileString(m map[string]any, path string) (node, error) {
	if values, ok := enumValues(m); ok {
		for _, v := range values {
			if _, isString := v.(string); !isString {
				return nil, compileErr(path, "string enum members must be strings", nil)
			}
		}
		return compileLiterals(values, path)
	}
	minLength, err := bound(m, "minLength", path)
	if err != nil {
		return nil, err
	}
	maxLength, err := bound(m, "maxLength", path)
	if err != nil {
		return nil, err
	}
	return &stringNode{minLength: minLength, maxLength: maxLength}, nil
}

func compileNumber(m map[string]any, path string, integer bool) (node, error) {
	n := &numberNode{integer: integer}
	for _, key := range []string{"minimum", "maximum"} {
		raw, ok := m[key]
		if !ok || raw == nil {
			continue
		}
		f, ok := asNumber(raw)
		if !ok {
			return nil, compileErr(path, key+" must be a number", nil)
		}
		if key == "minimum" {
			n.min = &f
		} else {
			n.max = &f
		}
	}
	return n, nil
}

func compileEnum(m map[string]any, path string) (node, error) {
	values, ok := enumValues(m)
	if !ok {
		return nil, compileErr(path, "enum schema requires a list of values", nil)
	}
	return compileLiterals(values, path)
}

func compileLiterals(values []any, path string) (node, error) {
	if len(values) == 0 {
		return nil, compileErr(path, "enum must not be empty", nil)
	}
	for i, v := range values {
		if !isPrimitive(v) {
			return nil, compileErr(path, fmt.Sprintf("enum member %d must be a string, number or boolean", i), nil)
		}
	}
	if len(values) == 1 {
		return &literalNode{value: values[0]}, nil
	}
	return &unionNode{values: values}, nil
}

func enumValues(m map[string]any) ([]any, bool) {
	raw, ok := m["enum"]
	if !ok {
		raw, ok = m["values"]
	}
	if !ok || raw == nil {
		return nil, false
	}
	list, ok := asSlice(raw)
	if !ok {
		return nil, false
	}
	return list, true
}

// bound reads a non-negative integer constraint; -1 means unset.
func bound(m map[string]any, key, path string) (int, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return -1, nil
	}
	f, ok := asNumber(raw)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, compileErr(path, key+" must be a non-negative integer", nil)
	}
	return int(f), nil
}
