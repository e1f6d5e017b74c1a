package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-toolrouter/internal/router"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the routed tools over MCP and HTTP",
		Long: `Serve loads the configured agents and exposes their tools.

The MCP endpoint uses stdio or streamable-http (--server-transport). With
streamable-http, the caller's access token is taken from the Authorization
header of each request; on stdio, --caller-token is used for every call.

Unless disabled with --http-addr=-, a REST API is served as well:
  GET  /tools/list
  POST /tools/call   {"name": "...", "arguments": {...}}
  GET  /health
  GET  /agents
  GET  /metrics`,
		RunE: runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stdio := cfg.Server.Transport == router.TransportStdio
	logger := newLogger(cfg, stdio)
	setupSignalHandler(cancel, logger)

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	mcpServer, err := router.NewMCPServer(rt.router, router.MCPServerConfig{
		Name:          cfg.Server.Name,
		Version:       version,
		Transport:     cfg.Server.Transport,
		CallerToken:   callerToken,
		NotifyClients: true,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	logger.Info("Registered %d tools", mcpServer.Sync(ctx))

	if cfg.Server.RefreshEnabled() {
		refresher, err := router.NewRefresher(mcpServer, cfg.Server.RefreshSchedule, logger)
		if err != nil {
			return err
		}
		go refresher.Run(ctx)
	}

	if cfg.Server.HTTPEnabled() {
		stop := startHTTPAPI(ctx, cfg.Server.HTTPAddr, rt)
		defer stop()
	}

	logger.Info("Starting %s MCP server (transport: %s)...", cfg.Server.Name, cfg.Server.Transport)
	if !stdio {
		logger.Info("Listening on %s%s", cfg.Server.ListenAddr, "/mcp")
	}
	if err := mcpServer.Start(ctx, cfg.Server.ListenAddr); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// startHTTPAPI serves the REST API in the background.
func startHTTPAPI(ctx context.Context, addr string, rt *runtime) func() {
	opts := router.HTTPOptions{Logger: rt.logger}
	if rt.registry != nil {
		opts.Gatherer = rt.registry
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router.NewHTTPHandler(rt.router, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		rt.logger.Info("REST API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("REST API error: %v", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
