package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/giantswarm/mcp-toolrouter/internal/config"
	"github.com/giantswarm/mcp-toolrouter/internal/logging"
	"github.com/giantswarm/mcp-toolrouter/internal/router"
)

var (
	version string

	configPath string
	verbose    bool
	noColor    bool
	jsonRPC    bool

	serverTransport     string
	listenAddr          string
	httpAddr            string
	refreshSchedule     string
	callerToken         string
	allowDuplicateTools bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcp-toolrouter",
	Short: "MCP tool router with on-behalf-of delegation",
	Long: `mcp-toolrouter exposes the tools of several downstream agents as one MCP server.

Each tool call is routed to the agent that owns the tool. When the caller
presents an access token, it is exchanged for a token scoped to the agent's
downstream resource (OAuth 2.0 On-Behalf-Of) before the call is made, so
downstream services see the end user's identity and permissions.

Agents are declared in a YAML configuration file:
- mcp agents proxy to a downstream MCP server over streamable-http
- http agents call plain HTTP endpoints with the JSON arguments
- static agents answer with fixed text

Running without a subcommand is the same as 'serve'.`,
	RunE:         runServe,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mcp-toolrouter.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonRPC, "json-rpc", false, "Log full tool call payloads")
	rootCmd.PersistentFlags().StringVar(&callerToken, "caller-token", os.Getenv("MCP_TOOLROUTER_CALLER_TOKEN"), "Caller access token used when a request carries none (stdio, console)")
	rootCmd.PersistentFlags().BoolVar(&allowDuplicateTools, "allow-duplicate-tools", false, "Start even if two agents provide the same tool (the first registered wins)")

	addServeFlags(rootCmd)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConsoleCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newConfigCmd())
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverTransport, "server-transport", "", "Transport protocol for the MCP server (stdio, streamable-http)")
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "Listen address for the streamable-http MCP server (path is fixed to /mcp)")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Listen address for the REST API and /metrics (\"-\" disables it)")
	cmd.Flags().StringVar(&refreshSchedule, "refresh-schedule", "", "Cron schedule for agent health checks and tool re-sync (\"off\" disables it)")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("server-transport") {
		cfg.Server.Transport = serverTransport
	}
	if flags.Changed("listen-addr") {
		cfg.Server.ListenAddr = listenAddr
	}
	if flags.Changed("http-addr") {
		cfg.Server.HTTPAddr = httpAddr
	}
	if flags.Changed("refresh-schedule") {
		cfg.Server.RefreshSchedule = refreshSchedule
	}
	if allowDuplicateTools {
		cfg.Server.AllowDuplicateTools = true
	}
	if verbose {
		cfg.Observability.Verbose = true
	}
	if noColor {
		cfg.Observability.NoColor = true
	}
	if jsonRPC {
		cfg.Observability.JSONRPC = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Server.RefreshEnabled() {
		if _, err := router.ParseSchedule(cfg.Server.RefreshSchedule); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, stdio bool) *logging.Logger {
	useColor := !cfg.Observability.NoColor && term.IsTerminal(int(os.Stderr.Fd()))
	logger := logging.NewLogger(cfg.Observability.Verbose, useColor, cfg.Observability.JSONRPC)
	if stdio {
		// stdout belongs to the MCP transport.
		logger.SetWriter(os.Stderr)
	}
	return logger
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func setupSignalHandler(cancel context.CancelFunc, logger *logging.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()
}
