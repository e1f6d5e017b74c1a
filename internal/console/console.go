// Package console is an interactive shell over the tool router, for trying
// out agents and tools without an MCP client.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/giantswarm/mcp-toolrouter/internal/logging"
	"github.com/giantswarm/mcp-toolrouter/internal/router"
)

// errExit is a sentinel error used to signal console exit
var errExit = errors.New("exit")

// Console is the Read-Eval-Print Loop over a router.
type Console struct {
	router          *router.Router
	logger          *logging.Logger
	out             io.Writer
	rl              *readline.Instance
	callerToken     string
	commandHandlers map[string]commandHandler
}

// New creates a console. callerToken is presented on every call until
// changed with the token command.
func New(r *router.Router, logger *logging.Logger, callerToken string) *Console {
	c := &Console{
		router:      r,
		logger:      logger,
		out:         os.Stdout,
		callerToken: callerToken,
	}
	c.commandHandlers = c.buildCommandHandlers()
	return c
}

// SetOutput redirects command output.
func (c *Console) SetOutput(w io.Writer) {
	c.out = w
}

// Run starts the console and blocks until exit, EOF or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	config := &readline.Config{
		Prompt:          "toolrouter> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".mcp_toolrouter_history"),
		AutoComplete:    c.createCompleter(ctx),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer func() { _ = rl.Close() }()
	c.rl = rl
	c.out = rl.Stdout()

	c.logger.Info("Console started. Type 'help' for available commands. Use TAB for completion.")
	c.println()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Console shutting down...")
			return nil
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		} else if errors.Is(err, io.EOF) {
			c.logger.Info("Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := c.executeCommand(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				c.logger.Info("Goodbye!")
				return nil
			}
			c.logger.Error("Error: %v", err)
		}
		c.println()
	}
}

// commandHandler defines a console command with its handler and argument requirements
type commandHandler struct {
	minArgs int
	usage   string
	handler func(ctx context.Context, parts []string) error
}

func (c *Console) buildCommandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		"help": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return c.showHelp()
		}},
		"?": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return c.showHelp()
		}},
		"exit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"quit": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return errExit
		}},
		"list": {
			minArgs: 2,
			usage:   "usage: list <tools|agents>",
			handler: func(ctx context.Context, parts []string) error {
				return c.handleList(ctx, parts[1])
			},
		},
		"describe": {
			minArgs: 3,
			usage:   "usage: describe tool <name>",
			handler: func(ctx context.Context, parts []string) error {
				if strings.ToLower(parts[1]) != "tool" {
					return fmt.Errorf("unknown describe target: %s. Use 'tool'", parts[1])
				}
				return c.describeTool(ctx, parts[2])
			},
		},
		"call": {
			minArgs: 2,
			usage:   "usage: call <tool-name> [json-args]",
			handler: func(ctx context.Context, parts []string) error {
				return c.handleCallTool(ctx, parts[1], strings.Join(parts[2:], " "))
			},
		},
		"health": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return c.showHealth(ctx)
		}},
		"agents": {minArgs: 1, handler: func(ctx context.Context, parts []string) error {
			return c.showAgents()
		}},
		"token": {
			minArgs: 2,
			usage:   "usage: token <bearer-token|clear>",
			handler: func(ctx context.Context, parts []string) error {
				return c.handleToken(parts[1])
			},
		},
		"verbose": {
			minArgs: 2,
			usage:   "usage: verbose <on|off>",
			handler: func(ctx context.Context, parts []string) error {
				return c.handleVerbose(parts[1])
			},
		},
	}
}

// executeCommand parses and executes a command
func (c *Console) executeCommand(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(parts[0])
	handler, exists := c.commandHandlers[command]
	if !exists {
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", command)
	}
	if len(parts) < handler.minArgs {
		return errors.New(handler.usage)
	}
	return handler.handler(ctx, parts)
}

func (c *Console) createCompleter(ctx context.Context) *readline.PrefixCompleter {
	var names []string
	for _, tool := range c.router.ListTools(ctx) {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	toolItems := make([]readline.PrefixCompleterInterface, len(names))
	for i, name := range names {
		toolItems[i] = readline.PcItem(name)
	}

	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("?"),
		readline.PcItem("exit"),
		readline.PcItem("quit"),
		readline.PcItem("list",
			readline.PcItem("tools"),
			readline.PcItem("agents"),
		),
		readline.PcItem("describe", readline.PcItem("tool", toolItems...)),
		readline.PcItem("call", toolItems...),
		readline.PcItem("health"),
		readline.PcItem("agents"),
		readline.PcItem("token", readline.PcItem("clear")),
		readline.PcItem("verbose",
			readline.PcItem("on"),
			readline.PcItem("off"),
		),
	)
}

// filterInput filters input characters for readline
func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (c *Console) println(args ...interface{}) {
	_, _ = fmt.Fprintln(c.out, args...)
}

func (c *Console) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
