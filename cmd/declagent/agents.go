// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jllopis/declagent/pkg/agentdef"
	"github.com/jllopis/declagent/pkg/registry"
)

type agentsListResult struct {
	Agents []agentdef.Summary `json:"agents"`
	Total  int                `json:"total"`
}

func agentsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect agents available from the configured sources",
	}
	cmd.AddCommand(agentsListCmd(flags))
	return cmd
}

func agentsListCmd(flags *rootFlags) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents from agents.dirs, the remote registry and the bundled set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			reg := registry.New(registry.WithSource(buildSources(cfg.Agents)), registry.WithLogger(logger))
			if _, err := reg.Preload(cmd.Context()); err != nil {
				return err
			}

			agents := make([]agentdef.Summary, 0, reg.Len())
			for _, s := range reg.List() {
				if category != "" && s.Category != category {
					continue
				}
				agents = append(agents, s)
			}
			result := agentsListResult{Agents: agents, Total: len(agents)}

			out := cmd.OutOrStdout()
			if flags.JSON {
				return printJSON(out, result)
			}
			if len(agents) == 0 {
				fmt.Fprintln(out, "No agents found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVERSION\tSTEPS\tROUTE\tDESCRIPTION")
			fmt.Fprintln(w, "--\t-------\t-----\t-----\t-----------")
			for _, s := range agents {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.Version, s.Steps, dash(s.Route), dash(s.Description))
			}
			w.Flush()
			fmt.Fprintf(out, "\nTotal: %d agents\n", result.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list agents of this metadata.category")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
