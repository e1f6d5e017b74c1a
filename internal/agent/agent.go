package agent

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Agent kinds accepted in configuration.
const (
	KindMCP    = "mcp"
	KindHTTP   = "http"
	KindStatic = "static"
)

// Agent owns a set of tools and executes them against a downstream service.
// Implementations never return errors across Execute; failures are encoded
// in the result.
type Agent interface {
	Info() Info

	// ListTools returns the tools currently on offer. It never fails; an
	// unreachable downstream yields an empty list.
	ListTools(ctx context.Context) []mcp.Tool

	// CanHandle reports whether a fresh listing contains name.
	CanHandle(ctx context.Context, name string) bool

	// Execute runs the tool named in req with the credentials in scope.
	Execute(ctx context.Context, scope *Scope, req mcp.CallToolRequest) *mcp.CallToolResult

	// Initialize prepares the agent for the caller in scope, exchanging the
	// caller token for a delegated token where needed. It is idempotent.
	Initialize(ctx context.Context, scope *Scope) error

	// CheckHealth probes whether the agent can list at least one tool.
	CheckHealth(ctx context.Context) Health

	// Status reports the agent's identity and last known state.
	Status() Status
}

// Info describes an agent.
type Info struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Domains     []string `json:"domains,omitempty"`
	Kind        string   `json:"kind,omitempty"`
}

// Health is the result of a health probe. It is recomputed on demand.
type Health struct {
	AgentID     string    `json:"agentId"`
	Name        string    `json:"name"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"lastChecked"`
}

// Status is the display state of an agent.
type Status struct {
	Info
	Initialized bool    `json:"initialized"`
	LastHealth  *Health `json:"lastHealth,omitempty"`
}

// Credential is what a backend presents downstream. An empty token means the
// call is anonymous.
type Credential struct {
	Token string
}

// Anonymous reports whether no token is attached.
func (c Credential) Anonymous() bool {
	return c.Token == ""
}

// String never includes the token value.
func (c Credential) String() string {
	if c.Anonymous() {
		return "Credential{anonymous}"
	}
	return "Credential{bearer}"
}

// Backend is the downstream half of an agent. Base supplies everything else.
type Backend interface {
	ListTools(ctx context.Context, cred Credential) ([]mcp.Tool, error)
	CallTool(ctx context.Context, cred Credential, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}
