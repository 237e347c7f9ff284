// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package expr

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Env maps variable names to their current values.
type Env map[string]any

// Clone returns a shallow copy of the environment.
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Resolve substitutes tokens in value against env.
//
// A string that is exactly one token is replaced by the referenced value,
// keeping its type; a missing reference yields nil. Strings that merely
// contain tokens are rendered textually. Slices and maps are resolved
// element-wise; map fields whose token is missing are dropped.
func Resolve(value any, env Env) any {
	out, _ := resolve(value, env)
	return out
}

func resolve(value any, env Env) (any, bool) {
	switch v := value.(type) {
	case string:
		return resolveString(v, env)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i], _ = resolve(item, env)
		}
		return out, true
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			resolved, ok := resolve(item, env)
			if !ok {
				continue
			}
			out[key] = resolved
		}
		return out, true
	default:
		return value, true
	}
}

func resolveString(s string, env Env) (any, bool) {
	if !strings.Contains(s, "$") {
		return s, true
	}
	tpl := Parse(s)
	if e, ok := tpl.Single(); ok {
		return e.Eval(env)
	}

	var b strings.Builder
	for _, part := range tpl.Parts {
		if part.Expr == nil {
			b.WriteString(part.Literal)
			continue
		}
		v, ok := part.Expr.Eval(env)
		if !ok {
			continue
		}
		b.WriteString(render(v))
	}
	return b.String(), true
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	if _, isMap := v.(map[string]any); isMap {
		return marshalOr(v)
	}
	if _, isSlice := v.([]any); isSlice {
		return marshalOr(v)
	}
	return fmt.Sprintf("%v", v)
}

func marshalOr(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// References returns the sorted, de-duplicated root identifiers referenced
// anywhere inside value.
func References(value any) []string {
	seen := make(map[string]struct{})
	collect(value, seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collect(value any, seen map[string]struct{}) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "$") {
			return
		}
		for _, part := range Parse(v).Parts {
			if part.Expr != nil {
				seen[Root(part.Expr)] = struct{}{}
			}
		}
	case []any:
		for _, item := range v {
			collect(item, seen)
		}
	case map[string]any:
		for _, item := range v {
			collect(item, seen)
		}
	}
}
