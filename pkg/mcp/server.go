// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolHandler runs a tool call with decoded arguments.
type ToolHandler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// Server wraps the mcp-go server so agents can be published as tools.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}
}

// RegisterTool registers a tool whose arguments are described by a JSON
// Schema document. A nil schema accepts any object.
func (s *Server) RegisterTool(name, description string, inputSchema map[string]any, handler ToolHandler) error {
	if inputSchema == nil {
		inputSchema = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(inputSchema)
	if err != nil {
		return err
	}
	tool := mcp.NewToolWithRawSchema(name, description, raw)
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handler(ctx, request.GetArguments())
	})
	return nil
}

// MCPServer exposes the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// HTTPHandler returns a streamable HTTP handler for the server.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// ServeStdio starts the server on Stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// TextResult builds a successful text result.
func TextResult(text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text)
}

// ErrorResult builds a tool-level error result.
func ErrorResult(text string) *mcp.CallToolResult {
	return mcp.NewToolResultError(text)
}
