// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jllopis/declagent/pkg/config"
	"github.com/jllopis/declagent/pkg/telemetry"
)

type rootFlags struct {
	ConfigPath string
	Profile    string
	Sets       []string
	JSON       bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "declagent",
		Short:         "Interpret declarative YAML agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.ConfigPath, "config", "c", "", "config file (YAML)")
	pf.StringVar(&flags.Profile, "profile", "", "config profile overlay, e.g. dev reads <config>.dev.yaml")
	pf.StringArrayVar(&flags.Sets, "set", nil, "override a config key (key=value, repeatable)")
	pf.BoolVar(&flags.JSON, "json", false, "output as JSON")

	cmd.AddCommand(
		runCmd(flags),
		validateCmd(flags),
		serveCmd(flags),
		mcpCmd(flags),
		agentsCmd(flags),
		adaptersCmd(flags),
		versionCmd(flags),
	)
	return cmd
}

// loadConfig loads the layered configuration and configures the default
// slog logger, writing to the command's stderr.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadWith(flags.options())
	if err != nil {
		return nil, nil, newConfigError(err, flags.ConfigPath)
	}
	logger := telemetry.ConfigureSlog(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	return cfg, logger, nil
}

func (f *rootFlags) options() config.Options {
	return config.Options{Path: f.ConfigPath, Profile: f.Profile, Overrides: f.Sets}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, err := cmd.PersistentFlags().GetBool("json")
	return err == nil && v
}
