package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-toolrouter/internal/logging"
)

// Supported MCP server transports.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// MCPServerConfig configures the MCP endpoint.
type MCPServerConfig struct {
	Name      string
	Version   string
	Transport string

	// CallerToken is used for calls that arrive without an Authorization
	// header, which is every call on stdio.
	CallerToken string

	// NotifyClients announces tool list changes to connected clients.
	NotifyClients bool
}

// MCPServer exposes the router's tools over MCP.
type MCPServer struct {
	router    *Router
	logger    *logging.Logger
	mcpServer *server.MCPServer
	cfg       MCPServerConfig

	mu         sync.Mutex
	registered map[string]mcp.Tool
}

// NewMCPServer creates an MCP server exposing every tool of r. Call Sync to
// register the tools.
func NewMCPServer(r *Router, cfg MCPServerConfig, logger *logging.Logger) (*MCPServer, error) {
	if r == nil {
		return nil, fmt.Errorf("router is required")
	}
	if cfg.Name == "" {
		cfg.Name = "mcp-toolrouter"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	switch cfg.Transport {
	case "":
		cfg.Transport = TransportStdio
	case TransportStdio, TransportStreamableHTTP:
	default:
		return nil, fmt.Errorf("unsupported server transport: %s", cfg.Transport)
	}

	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(cfg.NotifyClients),
		server.WithRecovery(),
	)

	return &MCPServer{
		router:     r,
		logger:     logger,
		mcpServer:  mcpServer,
		cfg:        cfg,
		registered: make(map[string]mcp.Tool),
	}, nil
}

// Sync registers the router's current tools, adding new or changed ones and
// removing tools no agent provides anymore. Clients are only notified when
// the tool set actually changed. It returns the number of registered tools.
func (m *MCPServer) Sync(ctx context.Context) int {
	tools := m.router.ListTools(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]mcp.Tool, len(tools))
	var changed []server.ServerTool
	for _, tool := range tools {
		if _, seen := current[tool.Name]; seen {
			// First registered agent owns the name.
			continue
		}
		current[tool.Name] = tool
		if old, ok := m.registered[tool.Name]; ok && sameTool(old, tool) {
			continue
		}
		m.logger.Debug("Registering tool %s", tool.Name)
		changed = append(changed, server.ServerTool{Tool: tool, Handler: m.handleCallTool})
	}
	if len(changed) > 0 {
		m.mcpServer.AddTools(changed...)
	}

	var vanished []string
	for name := range m.registered {
		if _, ok := current[name]; !ok {
			vanished = append(vanished, name)
		}
	}
	if len(vanished) > 0 {
		sort.Strings(vanished)
		m.logger.Info("Removing tools no longer provided: %v", vanished)
		m.mcpServer.DeleteTools(vanished...)
	}

	m.registered = current
	return len(current)
}

// sameTool compares two definitions by their wire form.
func sameTool(a, b mcp.Tool) bool {
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(x, y)
}

// Registered returns the names of the registered tools, sorted.
func (m *MCPServer) Registered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.registered))
	for name := range m.registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MCPServer) handleCallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token := CallerToken(ctx)
	if token == "" {
		token = m.cfg.CallerToken
	}
	return m.router.Execute(ctx, request, token), nil
}

// HTTPHandler returns the streamable-http handler serving /mcp.
func (m *MCPServer) HTTPHandler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		m.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithHTTPContextFunc(requestContext),
	)
}

// Start serves MCP on the configured transport until ctx is cancelled. The
// stdio transport returns when stdin is closed.
func (m *MCPServer) Start(ctx context.Context, listenAddr string) error {
	switch m.cfg.Transport {
	case TransportStdio:
		return server.ServeStdio(m.mcpServer)
	case TransportStreamableHTTP:
		return m.serveHTTP(ctx, listenAddr)
	default:
		return fmt.Errorf("unsupported server transport: %s", m.cfg.Transport)
	}
}

func (m *MCPServer) serveHTTP(ctx context.Context, listenAddr string) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", m.HTTPHandler())
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
