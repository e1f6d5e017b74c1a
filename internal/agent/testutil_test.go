package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-toolrouter/internal/credentials"
)

const testResource = "api://maps"

// fakeExchanger issues "delegated-<caller>" tokens and counts exchanges.
type fakeExchanger struct {
	mu           sync.Mutex
	exchanges    map[string]int
	serviceCalls int
	err          error
	noExpiry     bool
}

func newFakeExchanger() *fakeExchanger {
	return &fakeExchanger{exchanges: make(map[string]int)}
}

func (f *fakeExchanger) Exchange(_ context.Context, callerToken, resource string) (*credentials.DelegatedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges[callerToken+"|"+resource]++
	if f.err != nil {
		return nil, f.err
	}
	tok := &credentials.DelegatedToken{
		Resource: resource,
		Token:    "delegated-" + callerToken,
		Expiry:   time.Now().Add(time.Hour),
	}
	if f.noExpiry {
		tok.Expiry = time.Time{}
	}
	return tok, nil
}

func (f *fakeExchanger) ServiceToken(_ context.Context, resource string) (*credentials.DelegatedToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serviceCalls++
	return &credentials.DelegatedToken{
		Resource: resource,
		Token:    "service-token",
		Expiry:   time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeExchanger) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.exchanges {
		n += c
	}
	return n
}

// echoTokenTool returns the credential it was called with.
func echoTokenTool(name string) StaticTool {
	return StaticTool{
		Tool: mcp.NewTool(name, mcp.WithDescription("Echoes the presented credential")),
		Handler: func(_ context.Context, cred Credential, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(cred.Token), nil
		},
	}
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func mustNew(t *testing.T, cfg Config, backend Backend, opts ...Option) *Base {
	t.Helper()
	a, err := New(cfg, backend, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

type authHeaderKey struct{}

// MockDownstreamMCP is a real mcp-go server behind a bearer check.
type MockDownstreamMCP struct {
	*httptest.Server

	mu            sync.Mutex
	expectedToken string
	seenTokens    []string
}

// NewMockDownstreamMCP starts a downstream MCP server exposing geocode and
// fail. Requests must carry "Bearer <expectedToken>" unless it is empty.
func NewMockDownstreamMCP(t *testing.T, expectedToken string) *MockDownstreamMCP {
	t.Helper()

	m := &MockDownstreamMCP{expectedToken: expectedToken}

	mcpSrv := server.NewMCPServer("maps", "1.0.0", server.WithToolCapabilities(false))
	mcpSrv.AddTool(
		mcp.NewTool("geocode",
			mcp.WithDescription("Resolve an address to coordinates"),
			mcp.WithString("address", mcp.Required(), mcp.Description("Address to resolve")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			auth, _ := ctx.Value(authHeaderKey{}).(string)
			address := req.GetString("address", "")
			return mcp.NewToolResultText(fmt.Sprintf("%s => 52.52,13.40 (%s)", address, auth)), nil
		},
	)
	mcpSrv.AddTool(
		mcp.NewTool("fail", mcp.WithDescription("Always reports an error")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("upstream geocoder is unavailable"), nil
		},
	)

	streamable := server.NewStreamableHTTPServer(mcpSrv,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return context.WithValue(ctx, authHeaderKey{}, r.Header.Get("Authorization"))
		}),
	)

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		m.mu.Lock()
		m.seenTokens = append(m.seenTokens, strings.TrimPrefix(auth, "Bearer "))
		expected := m.expectedToken
		m.mu.Unlock()

		if expected != "" && auth != "Bearer "+expected {
			w.Header().Set("WWW-Authenticate", `Bearer realm="maps", error="invalid_token", error_description="token rejected"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		streamable.ServeHTTP(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *MockDownstreamMCP) Endpoint() string {
	return m.URL + "/mcp"
}

func (m *MockDownstreamMCP) SeenTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seenTokens...)
}
