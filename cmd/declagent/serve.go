// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/jllopis/declagent/pkg/config"
	"github.com/jllopis/declagent/pkg/httpapi"
	"github.com/jllopis/declagent/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(flags *rootFlags) *cobra.Command {
	var (
		addr    string
		withMCP bool
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve registered agents over HTTP",
		Long: `Serve registered agents over HTTP.

Routes:
  GET  /healthz          component health
  GET  /agents           list agents
  GET  /agents/{id}      describe an agent
  POST /agents/{id}      run an agent with {"input": ..., "props": ...}
  POST <metadata.route>  run the agent that declares the route
  /mcp                   MCP streamable HTTP endpoint (with --mcp)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Server.Addr
			}
			if !cmd.Flags().Changed("mcp") {
				withMCP = cfg.Server.MCP
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.registry.Preload(ctx)
			if err != nil {
				return err
			}
			logger.Info("agents loaded", slog.Int("count", n))

			opts := []httpapi.Option{httpapi.WithHealth(a.health), httpapi.WithLogger(logger)}
			if withMCP {
				server := mcp.NewServer(serviceName, version)
				tools, err := publishAgents(server, a)
				if err != nil {
					return err
				}
				logger.Info("MCP endpoint enabled", slog.Int("tools", tools))
				opts = append(opts, httpapi.WithMCPHandler(server.HTTPHandler()))
			}

			if watch {
				stop := a.watch(ctx, flags.options())
				defer stop()
			}

			srv := httpapi.NewHTTPServer(addr, httpapi.New(a.interp, a.registry, opts...))
			return serveUntilDone(ctx, srv, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "mount the MCP endpoint at /mcp")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload agents when agent directories or config files change")
	return cmd
}

// watch reloads the registry when an agent directory or a config file
// changes. Backend settings only take effect on restart.
func (a *app) watch(ctx context.Context, opts config.Options) func() {
	reload := func() {
		a.registry.Clear()
		n, err := a.registry.Preload(ctx)
		if err != nil {
			a.logger.Error("agent reload failed", slog.String("error", err.Error()))
			return
		}
		a.logger.Info("agents reloaded", slog.Int("count", n))
	}

	dirs := config.NewWatcher(a.cfg.Agents.Dirs, config.WithWatchLogger(a.logger))
	dirs.OnChange(reload)
	dirs.Start(ctx)

	rc := config.NewReloadableConfig(a.cfg)
	rc.OnUpdate(func(cfg *config.Config) {
		if !slices.Equal(cfg.Agents.Dirs, a.cfg.Agents.Dirs) {
			a.logger.Warn("agents.dirs changed; restart to watch the new directories")
		}
		reload()
	})
	files := config.WatchConfig(ctx, opts, rc, config.WithWatchLogger(a.logger))

	return func() {
		dirs.Stop()
		files.Stop()
	}
}

func serveUntilDone(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
