package console

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-toolrouter/internal/logging"
)

// showHelp displays available commands
func (c *Console) showHelp() error {
	c.println("Available commands:")
	c.println("  help, ?                      - Show this help message")
	c.println("  list tools                   - List all available tools")
	c.println("  list agents, agents          - List registered agents and their state")
	c.println("  describe tool <name>         - Show detailed information about a tool")
	c.println("  call <tool> {json}           - Execute a tool with JSON arguments")
	c.println("  health                       - Probe every agent")
	c.println("  token <bearer|clear>         - Set or clear the caller token")
	c.println("  verbose <on|off>             - Enable/disable verbose logging")
	c.println("  exit, quit                   - Exit the console")
	c.println()
	c.println("Keyboard shortcuts:")
	c.println("  TAB                          - Auto-complete commands and arguments")
	c.println("  ↑/↓ (arrow keys)             - Navigate command history")
	c.println("  Ctrl+R                       - Search command history")
	c.println("  Ctrl+C                       - Cancel current line")
	c.println("  Ctrl+D                       - Exit console")
	c.println()
	c.println("Examples:")
	c.println("  call hello_world {\"name\": \"Ada\"}")
	c.println("  call geocode {\"address\": \"Alexanderplatz, Berlin\"}")
	return nil
}

func (c *Console) handleList(ctx context.Context, target string) error {
	switch strings.ToLower(target) {
	case "tools", "tool":
		return c.listTools(ctx)
	case "agents", "agent":
		return c.showAgents()
	default:
		return fmt.Errorf("unknown list target: %s. Use 'tools' or 'agents'", target)
	}
}

func (c *Console) listTools(ctx context.Context) error {
	tools := c.router.ListTools(ctx)
	if len(tools) == 0 {
		c.println("No tools available.")
		return nil
	}

	c.printf("Available tools (%d):\n", len(tools))
	for i, tool := range tools {
		c.printf("  %d. %-30s - %s\n", i+1, tool.Name, tool.Description)
	}
	return nil
}

func (c *Console) describeTool(ctx context.Context, name string) error {
	for _, tool := range c.router.ListTools(ctx) {
		if tool.Name == name {
			c.printf("Tool: %s\n", tool.Name)
			c.printf("Description: %s\n", tool.Description)
			c.println("Input Schema:")
			c.printf("%s\n", logging.PrettyJSON(tool.InputSchema))
			return nil
		}
	}
	return fmt.Errorf("tool not found: %s", name)
}

// parseToolArgs parses JSON arguments for a tool call
func (c *Console) parseToolArgs(argsStr string, toolName string) (map[string]interface{}, error) {
	if argsStr == "" {
		return nil, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
		c.printf("Example: call %s {\"param1\": \"value1\", \"param2\": 123}\n", toolName)
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return args, nil
}

func (c *Console) handleCallTool(ctx context.Context, toolName string, argsStr string) error {
	args, err := c.parseToolArgs(argsStr, toolName)
	if err != nil {
		return err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	if args != nil {
		req.Params.Arguments = args
	}

	c.printf("Executing tool: %s...\n", toolName)
	c.displayToolResult(c.router.Execute(ctx, req, c.callerToken))
	return nil
}

// displayToolResult displays the result of a tool call
func (c *Console) displayToolResult(result *mcp.CallToolResult) {
	if result.IsError {
		c.println("Tool returned an error:")
		for _, content := range result.Content {
			if textContent, ok := mcp.AsTextContent(content); ok {
				c.printf("  %s\n", textContent.Text)
			}
		}
		return
	}

	c.println("Result:")
	for _, content := range result.Content {
		c.displayContent(content)
	}
}

func (c *Console) displayContent(content mcp.Content) {
	if textContent, ok := mcp.AsTextContent(content); ok {
		var jsonData interface{}
		if err := json.Unmarshal([]byte(textContent.Text), &jsonData); err == nil {
			c.println(logging.PrettyJSON(jsonData))
		} else {
			c.println(textContent.Text)
		}
	} else if imageContent, ok := mcp.AsImageContent(content); ok {
		c.printf("[Image: MIME type %s, %d bytes]\n", imageContent.MIMEType, len(imageContent.Data))
	} else if audioContent, ok := mcp.AsAudioContent(content); ok {
		c.printf("[Audio: MIME type %s, %d bytes]\n", audioContent.MIMEType, len(audioContent.Data))
	}
}

func (c *Console) showHealth(ctx context.Context) error {
	health := c.router.Health(ctx)
	if len(health) == 0 {
		c.println("No agents registered.")
		return nil
	}
	for _, h := range health {
		state := "healthy"
		if !h.Healthy {
			state = "UNHEALTHY"
		}
		c.printf("  %-20s %-10s %s\n", h.AgentID, state, h.Status)
	}
	return nil
}

func (c *Console) showAgents() error {
	statuses := c.router.Agents()
	if len(statuses) == 0 {
		c.println("No agents registered.")
		return nil
	}

	c.printf("Agents (%d):\n", len(statuses))
	for i, s := range statuses {
		initialized := "not initialized"
		if s.Initialized {
			initialized = "initialized"
		}
		c.printf("  %d. %-20s %-16s %s\n", i+1, s.ID, initialized, s.Description)
		if len(s.Domains) > 0 {
			c.printf("     domains: %s\n", strings.Join(s.Domains, ", "))
		}
		if s.LastHealth != nil && !s.LastHealth.Healthy {
			c.printf("     last health check: %s\n", s.LastHealth.Status)
		}
	}
	return nil
}

func (c *Console) handleToken(value string) error {
	if strings.EqualFold(value, "clear") {
		c.callerToken = ""
		c.println("Caller token cleared. Calls are anonymous.")
		return nil
	}
	c.callerToken = value
	c.println("Caller token set.")
	return nil
}

// handleVerbose enables or disables verbose logging
func (c *Console) handleVerbose(setting string) error {
	switch strings.ToLower(setting) {
	case "on":
		c.logger.SetVerbose(true)
		c.println("Verbose logging enabled")
	case "off":
		c.logger.SetVerbose(false)
		c.println("Verbose logging disabled")
	default:
		return fmt.Errorf("invalid setting: %s. Use 'on' or 'off'", setting)
	}
	return nil
}
