package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-toolrouter/internal/logging"
)

const (
	// Maximum size of a downstream response body (4MB)
	maxHTTPResponseSize = 4 * 1024 * 1024

	// Length of the body excerpt included in failure messages
	errorExcerptLength = 512
)

// HTTPTool is a tool served by a plain HTTP endpoint.
type HTTPTool struct {
	Name        string
	Description string
	Method      string
	URL         string
	InputSchema mcp.ToolInputSchema
}

// HTTPBackend executes tools by calling HTTP endpoints with the JSON arguments.
type HTTPBackend struct {
	tools     []HTTPTool
	transport http.RoundTripper
	logger    *logging.Logger
}

// NewHTTPBackend creates a backend for the given tools. A nil transport uses
// http.DefaultTransport.
func NewHTTPBackend(tools []HTTPTool, rt http.RoundTripper, logger *logging.Logger) (*HTTPBackend, error) {
	tools = append([]HTTPTool(nil), tools...)
	seen := make(map[string]bool, len(tools))
	for i, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool %d: name is required", i)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("tool %s declared twice", t.Name)
		}
		seen[t.Name] = true

		if _, err := url.ParseRequestURI(t.URL); err != nil {
			return nil, fmt.Errorf("tool %s: invalid URL: %w", t.Name, err)
		}
		switch strings.ToUpper(t.Method) {
		case "":
			tools[i].Method = http.MethodPost
		case http.MethodGet, http.MethodPost, http.MethodPut:
			tools[i].Method = strings.ToUpper(t.Method)
		default:
			return nil, fmt.Errorf("tool %s: unsupported method %s", t.Name, t.Method)
		}
		if tools[i].InputSchema.Type == "" {
			tools[i].InputSchema.Type = "object"
		}
	}
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &HTTPBackend{tools: tools, transport: rt, logger: logger}, nil
}

// ListTools implements Backend.
func (b *HTTPBackend) ListTools(_ context.Context, _ Credential) ([]mcp.Tool, error) {
	tools := make([]mcp.Tool, 0, len(b.tools))
	for _, t := range b.tools {
		tools = append(tools, mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return tools, nil
}

// CallTool implements Backend.
func (b *HTTPBackend) CallTool(ctx context.Context, cred Credential, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tool, ok := b.find(req.Params.Name)
	if !ok {
		return nil, fmt.Errorf("tool %q not found", req.Params.Name)
	}

	httpReq, err := buildHTTPRequest(ctx, tool, req.GetArguments())
	if err != nil {
		return nil, err
	}

	rt := newBearerRoundTripper(cred.Token, b.transport)
	resp, err := (&http.Client{Transport: rt}).Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", tool.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if rejected := rt.Rejection(); rejected != nil {
		return nil, rejected
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", tool.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s returned HTTP %d: %s", tool.URL, resp.StatusCode, excerpt(body))
	}

	b.logger.Debug("%s %s -> %d (%d bytes)", tool.Method, tool.URL, resp.StatusCode, len(body))
	return mcp.NewToolResultText(string(body)), nil
}

func (b *HTTPBackend) find(name string) (HTTPTool, bool) {
	for _, t := range b.tools {
		if t.Name == name {
			return t, true
		}
	}
	return HTTPTool{}, false
}

func buildHTTPRequest(ctx context.Context, tool HTTPTool, args map[string]interface{}) (*http.Request, error) {
	if tool.Method == http.MethodGet {
		u, err := url.Parse(tool.URL)
		if err != nil {
			return nil, err
		}
		query := u.Query()
		for k, v := range args {
			if s, ok := v.(string); ok {
				query.Set(k, s)
				continue
			}
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode argument %s: %w", k, err)
			}
			query.Set(k, string(encoded))
		}
		u.RawQuery = query.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, tool.Method, tool.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorExcerptLength {
		s = s[:errorExcerptLength] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
