// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/errors"
	"github.com/jllopis/declagent/pkg/schema"
)

type validateResult struct {
	Agents  []agentCheck `json:"agents"`
	Overall string       `json:"overall"`
}

type agentCheck struct {
	Target string        `json:"target"`
	Checks []checkResult `json:"checks"`
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warn", "error", "skip"
	Message string `json:"message,omitempty"`
}

func validateCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file|agent-id>...",
		Short: "Check agent documents without running them",
		Long: `Check agent documents without running them.

Each document is parsed, both schemas are compiled and the workflow is
linted for references to undefined or later steps. Lint findings are
reported as warnings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			src := buildSources(cfg.Agents)
			compiler := schema.NewCompiler()

			result := validateResult{Overall: "ok"}
			for _, target := range args {
				check := validateTarget(cmd, src, compiler, target)
				for _, c := range check.Checks {
					switch {
					case c.Status == "error":
						result.Overall = "error"
					case c.Status == "warn" && result.Overall == "ok":
						result.Overall = "warn"
					}
				}
				result.Agents = append(result.Agents, check)
			}

			if flags.JSON {
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				printValidateResult(cmd.OutOrStdout(), result)
			}
			if result.Overall == "error" {
				return errors.New(errors.CodeInvalidDocument, "validation failed", nil)
			}
			return nil
		},
	}
	return cmd
}

func validateTarget(cmd *cobra.Command, src agentdef.Source, compiler *schema.Compiler, target string) agentCheck {
	check := agentCheck{Target: target}
	fail := func(name string, err error) agentCheck {
		check.Checks = append(check.Checks, checkResult{Name: name, Status: "error", Message: err.Error()})
		return check
	}

	var (
		raw []byte
		err error
	)
	if isFile(target) {
		raw, err = os.ReadFile(target)
	} else {
		raw, err = src.Load(cmd.Context(), target)
	}
	if err != nil {
		return fail("load", err)
	}
	check.Checks = append(check.Checks, checkResult{Name: "load", Status: "ok"})

	def, err := agentdef.Parse(raw)
	if err != nil {
		return fail("parse", err)
	}
	check.Checks = append(check.Checks, checkResult{
		Name:    "parse",
		Status:  "ok",
		Message: fmt.Sprintf("%s@%s, %d steps", def.ID(), def.Agent.Version, len(def.Logic.Workflow)),
	})

	for _, s := range []struct {
		name string
		def  any
	}{
		{"schema.input", def.Schema.Input},
		{"schema.output", def.Schema.Output},
	} {
		if _, err := compiler.Compile(s.def, s.name); err != nil {
			check.Checks = append(check.Checks, checkResult{Name: s.name, Status: "error", Message: err.Error()})
			continue
		}
		check.Checks = append(check.Checks, checkResult{Name: s.name, Status: "ok"})
	}

	findings := def.Lint()
	if len(findings) == 0 {
		check.Checks = append(check.Checks, checkResult{Name: "lint", Status: "ok"})
	}
	for _, f := range findings {
		check.Checks = append(check.Checks, checkResult{Name: "lint", Status: "warn", Message: f.String()})
	}
	return check
}

func printValidateResult(w io.Writer, result validateResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, a := range result.Agents {
		fmt.Fprintf(tw, "%s\n", a.Target)
		for _, c := range a.Checks {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", statusIcon(c.Status), c.Name, c.Message)
		}
	}
	tw.Flush()
	fmt.Fprintf(w, "\nOverall: %s\n", result.Overall)
}

func statusIcon(status string) string {
	switch status {
	case "ok":
		return "✓"
	case "warn":
		return "!"
	case "error":
		return "✗"
	default:
		return "-"
	}
}
