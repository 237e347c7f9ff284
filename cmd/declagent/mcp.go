// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/core"
	"github.com/jllopis/declagent/pkg/interpreter"
	"github.com/jllopis/declagent/pkg/mcp"
)

// wrappedInputKey carries non-object agent inputs, since MCP tool
// arguments are always an object.
const wrappedInputKey = "input"

func mcpCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve registered agents as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.registry.Preload(ctx); err != nil {
				return err
			}
			server := mcp.NewServer(serviceName, version)
			n, err := publishAgents(server, a)
			if err != nil {
				return err
			}
			logger.Info("serving agents over MCP stdio", slog.Int("tools", n))
			return server.ServeStdio()
		},
	}
}

// publishAgents registers every agent in the registry as an MCP tool
// named after the agent id.
func publishAgents(server *mcp.Server, a *app) (int, error) {
	published := 0
	for _, summary := range a.registry.List() {
		raw, ok := a.registry.Get(summary.ID)
		if !ok {
			continue
		}
		def, err := agentdef.Parse(raw)
		if err != nil {
			return published, err
		}
		validator, err := a.interp.Compiler().Compile(def.Schema.Input, "schema.input")
		if err != nil {
			return published, err
		}
		inputSchema := validator.JSONSchema()
		wrapped := inputSchema["type"] != "object"
		if wrapped {
			inputSchema = map[string]any{
				"type":       "object",
				"properties": map[string]any{wrappedInputKey: inputSchema},
				"required":   []string{wrappedInputKey},
			}
		}

		description := summary.Description
		if description == "" {
			description = summary.Name
		}
		if err := server.RegisterTool(summary.ID, description, inputSchema, agentTool(a, summary.ID, wrapped)); err != nil {
			return published, fmt.Errorf("publish %s: %w", summary.ID, err)
		}
		published++
	}
	return published, nil
}

func agentTool(a *app, id string, wrapped bool) mcp.ToolHandler {
	return func(ctx context.Context, args map[string]any) (*mcpgo.CallToolResult, error) {
		var input any = args
		if wrapped {
			input = args[wrappedInputKey]
		}
		ctx, runID := core.EnsureRunID(core.WithAgentID(ctx, id))
		exec := core.NewExecution(core.WithExecutionID(runID), core.WithExecutionLogger(a.logger))
		out, err := a.interp.InterpretAgent(ctx, a.registry, id, interpreter.Request{Input: input, Exec: exec})
		if err != nil {
			raw, _ := json.Marshal(describeError(err))
			return mcp.ErrorResult(string(raw)), nil
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return mcp.ErrorResult(err.Error()), nil
		}
		return mcp.TextResult(string(raw)), nil
	}
}
