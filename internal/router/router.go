// Package router is the facade the transports talk to. It adds the built-in
// hello_world tool to the tools of the registered agents and hands every
// other call to the agent manager.
package router

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-toolrouter/internal/agent"
	"github.com/giantswarm/mcp-toolrouter/internal/logging"
)

// HelloWorldTool is answered by the router itself.
const HelloWorldTool = "hello_world"

// Dispatcher is the part of the agent manager the router uses.
// *manager.Manager implements it.
type Dispatcher interface {
	GetAllAvailableTools(ctx context.Context) []mcp.Tool
	ExecuteTool(ctx context.Context, req mcp.CallToolRequest, userToken string) *mcp.CallToolResult
	GetAllAgentHealth(ctx context.Context) []agent.Health
	Agents() []agent.Status
}

// Router exposes the tools of all agents plus the built-in ones.
type Router struct {
	dispatcher Dispatcher
	logger     *logging.Logger
}

// New creates a Router on top of d.
func New(d Dispatcher, logger *logging.Logger) *Router {
	return &Router{dispatcher: d, logger: logger}
}

func helloWorldTool() mcp.Tool {
	return mcp.NewTool(HelloWorldTool,
		mcp.WithDescription("Greet someone. Useful to check that the router is reachable."),
		mcp.WithString("name",
			mcp.Description("Name to greet (default: World)"),
		),
	)
}

// ListTools returns the built-in tools followed by every agent tool.
func (r *Router) ListTools(ctx context.Context) []mcp.Tool {
	tools := []mcp.Tool{helloWorldTool()}
	return append(tools, r.dispatcher.GetAllAvailableTools(ctx)...)
}

// Execute runs a tool call on behalf of the caller identified by userToken,
// which may be empty. The result is never nil.
func (r *Router) Execute(ctx context.Context, req mcp.CallToolRequest, userToken string) *mcp.CallToolResult {
	if req.Params.Name == HelloWorldTool {
		return helloWorld(req)
	}
	return r.dispatcher.ExecuteTool(ctx, req, userToken)
}

func helloWorld(req mcp.CallToolRequest) *mcp.CallToolResult {
	name := "World"
	if v, ok := req.GetArguments()["name"]; ok {
		s, isString := v.(string)
		if !isString {
			return agent.ErrorResult(agent.CategoryInvalidArguments, "Invalid arguments for tool %s: name must be a string", HelloWorldTool)
		}
		if s != "" {
			name = s
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("Hello, %s!", name))
}

// Health reports the health of every agent.
func (r *Router) Health(ctx context.Context) []agent.Health {
	return r.dispatcher.GetAllAgentHealth(ctx)
}

// Agents reports the status of every agent.
func (r *Router) Agents() []agent.Status {
	return r.dispatcher.Agents()
}
