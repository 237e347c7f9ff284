// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jllopis/declagent/pkg/core"
	"github.com/jllopis/declagent/pkg/errors"
	"github.com/jllopis/declagent/pkg/interpreter"
)

type runResult struct {
	RunID      string   `json:"run_id"`
	Agent      string   `json:"agent"`
	Output     any      `json:"output"`
	Logs       []string `json:"logs"`
	DurationMS int64    `json:"duration_ms"`
}

func runCmd(flags *rootFlags) *cobra.Command {
	var (
		input    string
		props    []string
		showLogs bool
	)
	cmd := &cobra.Command{
		Use:   "run <file|agent-id>",
		Short: "Interpret an agent once and print its output",
		Long: `Interpret an agent once and print its output.

The argument is a path to a YAML document or the id of an agent resolvable
through the configured sources (agents.dirs, agents.remote_url, bundled).`,
		Example: `  declagent run ping --input '{"message":"hi"}'
  declagent run ./agents/summarize.yaml --input @input.json --prop tenant=acme
  echo '{"message":"hi"}' | declagent run ping --input -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputValue, err := readInput(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			propValues, err := parseProps(props)
			if err != nil {
				return err
			}

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

			ctx, runID := core.EnsureRunID(ctx)
			exec := core.NewExecution(core.WithExecutionID(runID), core.WithExecutionLogger(logger))
			req := interpreter.Request{Input: inputValue, Props: propValues, Exec: exec}

			target := args[0]
			var out any
			if isFile(target) {
				req.YAML, err = os.ReadFile(target)
				if err != nil {
					return newInvalidArgumentError(target, err.Error())
				}
				out, err = a.interp.Interpret(ctx, req)
			} else {
				out, err = a.interp.InterpretAgent(core.WithAgentID(ctx, target), a.registry, target, req)
				if errors.HasCode(err, errors.CodeNotFound) {
					err = newNotFoundError(err, target)
				}
			}

			if showLogs {
				for _, line := range exec.Logs() {
					fmt.Fprintln(cmd.ErrOrStderr(), line)
				}
			}
			if err != nil {
				return err
			}

			if flags.JSON {
				return printJSON(cmd.OutOrStdout(), runResult{
					RunID:      runID,
					Agent:      target,
					Output:     out,
					Logs:       exec.Logs(),
					DurationMS: exec.Duration().Milliseconds(),
				})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "input JSON, @file to read a file, - to read stdin")
	cmd.Flags().StringArrayVarP(&props, "prop", "p", nil, "caller property key=value (repeatable, JSON values allowed)")
	cmd.Flags().BoolVar(&showLogs, "logs", false, "print execution logs to stderr")
	return cmd
}

func isFile(target string) bool {
	if !strings.HasSuffix(target, ".yaml") && !strings.HasSuffix(target, ".yml") && !strings.ContainsRune(target, os.PathSeparator) {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && !info.IsDir()
}

// readInput decodes the --input value. An empty value means no input.
func readInput(value string, stdin io.Reader) (any, error) {
	var raw []byte
	switch {
	case value == "":
		return nil, nil
	case value == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, newInvalidArgumentError("--input", err.Error())
		}
		raw = data
	case strings.HasPrefix(value, "@"):
		data, err := os.ReadFile(strings.TrimPrefix(value, "@"))
		if err != nil {
			return nil, newInvalidArgumentError("--input", err.Error())
		}
		raw = data
	default:
		raw = []byte(value)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, newInvalidArgumentError("--input", "input is not valid JSON: "+err.Error())
	}
	return out, nil
}

// parseProps turns key=value pairs into caller properties. Values that
// parse as JSON keep their JSON type.
func parseProps(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, newInvalidArgumentError("--prop", fmt.Sprintf("%q is not key=value", pair))
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		props[key] = value
	}
	return props, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
