// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package interpreter

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// normalize converts a value into the JSON-like shapes the resolver and the
// validators understand. Values that already are JSON-like are returned as
// is; anything else goes through a JSON round trip.
func normalize(v any) any {
	if jsonLike(v) {
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func jsonLike(v any) bool {
	switch t := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case []any:
		for _, item := range t {
			if !jsonLike(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range t {
			if !jsonLike(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// matchesType reports whether value satisfies a declared variable type.
// Absent values match every type.
func matchesType(declared string, value any) bool {
	if value == nil {
		return true
	}
	switch declared {
	case "", "any", "unknown":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := number(value)
		return ok
	case "integer":
		f, ok := number(value)
		return ok && f == math.Trunc(f)
	case "object":
		return reflect.ValueOf(value).Kind() == reflect.Map
	case "array":
		k := reflect.ValueOf(value).Kind()
		return k == reflect.Slice || k == reflect.Array
	default:
		return false
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	default:
		return 0, false
	}
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	}
	if _, ok := number(v); ok {
		return "a number"
	}
	return fmt.Sprintf("%T", v)
}
