package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-toolrouter/internal/console"
)

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Explore and call the routed tools interactively",
		Long: `Console starts an interactive shell over the configured agents.

You can:
- List tools and agents
- Show the input schema of a tool
- Call tools with JSON arguments
- Probe agent health
- Switch the caller token used for delegation

No MCP or HTTP endpoint is started.`,
		RunE: runConsole,
	}
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logger := newLogger(cfg, false)
	setupSignalHandler(cancel, logger)

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if err := console.New(rt.router, logger, callerToken).Run(ctx); err != nil {
		return fmt.Errorf("console error: %w", err)
	}
	return nil
}
