// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// JSONSchema renders the compiled schema as a JSON Schema document, used
// when agents are published as MCP tools.
func (v *Validator) JSONSchema() map[string]any {
	if v == nil || v.root == nil {
		return map[string]any{}
	}
	return toJSONSchema(v.root)
}

func toJSONSchema(n node) map[string]any {
	switch t := n.(type) {
	case *objectNode:
		out := map[string]any{"type": "object"}
		props := make(map[string]any, len(t.names))
		var required []string
		for _, name := range t.names {
			props[name] = toJSONSchema(t.props[name])
			if t.required[name] {
				required = append(required, name)
			}
		}
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
		switch {
		case t.extra != nil:
			out["additionalProperties"] = toJSONSchema(t.extra)
		default:
			out["additionalProperties"] = t.passthrough
		}
		return out
	case *arrayNode:
		out := map[string]any{"type": "array", "items": toJSONSchema(t.items)}
		if t.minItems >= 0 {
			out["minItems"] = t.minItems
		}
		if t.maxItems >= 0 {
			out["maxItems"] = t.maxItems
		}
		return out
	case *stringNode:
		out := map[string]any{"type": "string"}
		if t.minLength >= 0 {
			out["minLength"] = t.minLength
		}
		if t.maxLength >= 0 {
			out["maxLength"] = t.maxLength
		}
		return out
	case *numberNode:
		out := map[string]any{"type": "number"}
		if t.integer {
			out["type"] = "integer"
		}
		if t.min != nil {
			out["minimum"] = *t.min
		}
		if t.max != nil {
			out["maximum"] = *t.max
		}
		return out
	case booleanNode:
		return map[string]any{"type": "boolean"}
	case *literalNode:
		return map[string]any{"const": t.value}
	case *unionNode:
		values := make([]any, len(t.values))
		copy(values, t.values)
		return map[string]any{"enum": values}
	default:
		return map[string]any{}
	}
}
