// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolCaller abstracts MCP tool execution. *Client implements it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ResultValue converts a tool result into the JSON-like value stored in the
// variable environment: {content, is_error, structured}. Text content parts
// are joined with newlines; a JSON text body is also exposed as structured
// when the server sent no structured content.
func ResultValue(result *mcp.CallToolResult) map[string]any {
	if result == nil {
		return map[string]any{"content": "", "is_error": false, "structured": nil}
	}
	text := extractTextContent(result.Content)
	structured := normalizeStructured(result.StructuredContent)
	if structured == nil {
		structured = decodeJSONText(text)
	}
	return map[string]any{
		"content":    text,
		"is_error":   result.IsError,
		"structured": structured,
	}
}

func normalizeStructured(v any) any {
	if v == nil {
		return nil
	}
	switch v.(type) {
	case map[string]any, []any, string, bool, float64:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func decodeJSONText(text string) any {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil
	}
	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil
	}
	return out
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ ToolCaller = (*Client)(nil)
