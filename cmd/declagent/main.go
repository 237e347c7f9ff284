// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Command declagent runs, validates and serves declarative YAML agents.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err, jsonOutput(root))
		stop()
		os.Exit(exitCode(err))
	}
}
