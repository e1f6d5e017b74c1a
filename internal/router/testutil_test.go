package router

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-toolrouter/internal/agent"
)

// fakeDispatcher serves a fixed tool list and records dispatches.
type fakeDispatcher struct {
	tools  []mcp.Tool
	health []agent.Health

	mu     sync.Mutex
	calls  []string
	tokens []string
}

func (f *fakeDispatcher) GetAllAvailableTools(context.Context) []mcp.Tool {
	return append([]mcp.Tool{}, f.tools...)
}

func (f *fakeDispatcher) ExecuteTool(_ context.Context, req mcp.CallToolRequest, userToken string) *mcp.CallToolResult {
	f.mu.Lock()
	f.calls = append(f.calls, req.Params.Name)
	f.tokens = append(f.tokens, userToken)
	f.mu.Unlock()

	for _, tool := range f.tools {
		if tool.Name == req.Params.Name {
			return mcp.NewToolResultText("ran " + tool.Name)
		}
	}
	return agent.ErrorResult(agent.CategoryUnknownTool, "No agent provides tool %q", req.Params.Name)
}

func (f *fakeDispatcher) GetAllAgentHealth(context.Context) []agent.Health {
	return f.health
}

func (f *fakeDispatcher) Agents() []agent.Status {
	return []agent.Status{{Info: agent.Info{ID: "maps", Name: "Maps"}, Initialized: true}}
}

func (f *fakeDispatcher) dispatched() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]string(nil), f.tokens...)
}

func newFakeDispatcher(tools ...string) *fakeDispatcher {
	f := &fakeDispatcher{}
	for _, name := range tools {
		f.tools = append(f.tools, mcp.NewTool(name))
	}
	f.health = []agent.Health{{AgentID: "maps", Name: "Maps", Healthy: true, Status: "ok", LastChecked: time.Now()}}
	return f
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}
