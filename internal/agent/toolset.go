package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolHandler executes an in-process tool.
type ToolHandler func(ctx context.Context, cred Credential, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StaticTool pairs a tool definition with its handler.
type StaticTool struct {
	Tool    mcp.Tool
	Handler ToolHandler
}

// ToolSet is a Backend serving in-process tools.
type ToolSet struct {
	mu    sync.RWMutex
	tools []StaticTool
}

// NewToolSet creates a ToolSet with the given tools.
func NewToolSet(tools ...StaticTool) *ToolSet {
	return &ToolSet{tools: tools}
}

// AddTool appends a tool. A tool with the same name replaces the old one.
func (s *ToolSet) AddTool(tool mcp.Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tools {
		if s.tools[i].Tool.Name == tool.Name {
			s.tools[i] = StaticTool{Tool: tool, Handler: handler}
			return
		}
	}
	s.tools = append(s.tools, StaticTool{Tool: tool, Handler: handler})
}

// ListTools implements Backend.
func (s *ToolSet) ListTools(_ context.Context, _ Credential) ([]mcp.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tools := make([]mcp.Tool, 0, len(s.tools))
	for _, t := range s.tools {
		tools = append(tools, t.Tool)
	}
	return tools, nil
}

// CallTool implements Backend.
func (s *ToolSet) CallTool(ctx context.Context, cred Credential, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.RLock()
	var handler ToolHandler
	for _, t := range s.tools {
		if t.Tool.Name == req.Params.Name {
			handler = t.Handler
			break
		}
	}
	s.mu.RUnlock()

	if handler == nil {
		return nil, fmt.Errorf("tool %q not found", req.Params.Name)
	}
	return handler(ctx, cred, req)
}
