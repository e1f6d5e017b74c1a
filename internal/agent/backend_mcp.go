package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-toolrouter/internal/logging"
)

// MCPBackend proxies to a downstream MCP server over streamable HTTP. Every
// operation opens its own short-lived session carrying the call's credential,
// so no connection is ever shared between callers.
type MCPBackend struct {
	endpoint   string
	transport  http.RoundTripper
	logger     *logging.Logger
	clientName string
	version    string
}

// MCPOption configures an MCPBackend.
type MCPOption func(*MCPBackend)

// WithMCPTransport sets the base HTTP transport.
func WithMCPTransport(rt http.RoundTripper) MCPOption {
	return func(b *MCPBackend) { b.transport = rt }
}

// WithMCPLogger sets the logger.
func WithMCPLogger(logger *logging.Logger) MCPOption {
	return func(b *MCPBackend) { b.logger = logger }
}

// WithClientInfo sets the client name and version sent on initialize.
func WithClientInfo(name, version string) MCPOption {
	return func(b *MCPBackend) {
		b.clientName = name
		b.version = version
	}
}

// NewMCPBackend creates a backend for the MCP server at endpoint.
func NewMCPBackend(endpoint string, opts ...MCPOption) *MCPBackend {
	b := &MCPBackend{
		endpoint:   endpoint,
		transport:  http.DefaultTransport,
		clientName: "mcp-toolrouter",
		version:    "dev",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ListTools implements Backend.
func (b *MCPBackend) ListTools(ctx context.Context, cred Credential) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	err := b.withRetry(ctx, "tools/list", cred, func(ctx context.Context, c *client.Client) error {
		req := mcp.ListToolsRequest{}
		b.logger.Request("tools/list", req.Params)
		result, err := c.ListTools(ctx, req)
		if err != nil {
			return err
		}
		b.logger.Response("tools/list", result)
		tools = result.Tools
		return nil
	})
	return tools, err
}

// CallTool implements Backend.
func (b *MCPBackend) CallTool(ctx context.Context, cred Credential, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var result *mcp.CallToolResult
	err := b.withRetry(ctx, "tools/call", cred, func(ctx context.Context, c *client.Client) error {
		var err error
		result, err = c.CallTool(ctx, req)
		return err
	})
	return result, err
}

// withRetry runs fn in a fresh session and retries once on connection loss.
func (b *MCPBackend) withRetry(ctx context.Context, operation string, cred Credential, fn func(context.Context, *client.Client) error) error {
	const maxRetries = 1
	var err error

	for i := 0; i <= maxRetries; i++ {
		err = b.withSession(ctx, cred, fn)
		if err == nil {
			return nil
		}
		if i < maxRetries && ctx.Err() == nil && shouldReconnect(err) {
			b.logger.Warning("Connection to %s lost during %s, reconnecting...", b.endpoint, operation)
			continue
		}
		break
	}

	return fmt.Errorf("%s on %s: %w", operation, b.endpoint, err)
}

func (b *MCPBackend) withSession(ctx context.Context, cred Credential, fn func(context.Context, *client.Client) error) error {
	rt := newBearerRoundTripper(cred.Token, b.transport)

	c, err := client.NewStreamableHttpClient(b.endpoint,
		transport.WithHTTPBasicClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		return fmt.Errorf("failed to create streamable HTTP client: %w", err)
	}
	defer func() { _ = c.Close() }()

	err = b.session(ctx, c, fn)
	if err != nil {
		if rejected := rt.Rejection(); rejected != nil {
			return rejected
		}
	}
	return err
}

func (b *MCPBackend) session(ctx context.Context, c *client.Client, fn func(context.Context, *client.Client) error) error {
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start client: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: b.clientName, Version: b.version}
	b.logger.Request("initialize", req.Params)

	result, err := c.Initialize(ctx, req)
	if err != nil {
		return fmt.Errorf("initialization: %w", err)
	}
	b.logger.Response("initialize", result)

	if result.Capabilities.Tools == nil {
		return fmt.Errorf("server %s does not support tools", result.ServerInfo.Name)
	}
	return fn(ctx, c)
}

func shouldReconnect(err error) bool {
	if err == nil {
		return false
	}
	if IsDownstreamAuthError(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset by peer") ||
		strings.Contains(errMsg, "transport is closing") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "unexpected eof")
}
