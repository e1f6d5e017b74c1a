package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/mcp-toolrouter/internal/credentials"
	"github.com/giantswarm/mcp-toolrouter/internal/logging"
	"github.com/giantswarm/mcp-toolrouter/internal/observability"
)

// TokenExchanger issues downstream tokens. *credentials.Exchanger implements it.
type TokenExchanger interface {
	Exchange(ctx context.Context, callerToken, resource string) (*credentials.DelegatedToken, error)
	ServiceToken(ctx context.Context, resource string) (*credentials.DelegatedToken, error)
}

// Config describes one agent.
type Config struct {
	ID          string
	Name        string
	Description string
	Domains     []string
	Kind        string

	// Resource is the downstream resource the caller token is exchanged for.
	// Empty means the backend needs no credential.
	Resource string

	// AllowAnonymous lets calls without a delegated token through.
	AllowAnonymous bool

	// ServiceIdentity uses the server's own client-credentials token for tool
	// listing and anonymous calls.
	ServiceIdentity bool

	// Timeout bounds a single Execute (0: no limit beyond the caller's context)
	Timeout time.Duration
}

// Base implements Agent on top of a Backend. It handles credential
// resolution, argument validation, panic containment, timeouts and
// error-to-result normalization.
type Base struct {
	cfg       Config
	backend   Backend
	exchanger TokenExchanger
	logger    *logging.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	now       func() time.Time

	initialized atomic.Bool
	lastHealth  atomic.Pointer[Health]
	schemas     atomic.Pointer[map[string]mcp.Tool]
}

// Option configures a Base.
type Option func(*Base)

// WithExchanger sets the token exchanger used by Initialize.
func WithExchanger(ex TokenExchanger) Option {
	return func(b *Base) { b.exchanger = ex }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Base) { b.logger = logger }
}

// WithMetrics records tool executions.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Base) { b.metrics = m }
}

// WithTracer wraps executions in spans.
func WithTracer(t *observability.Tracer) Option {
	return func(b *Base) { b.tracer = t }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Base) { b.now = now }
}

// New creates an agent from a backend.
func New(cfg Config, backend Backend, opts ...Option) (*Base, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("agent ID is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("agent %s: backend is required", cfg.ID)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}

	b := &Base{cfg: cfg, backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}

	if b.exchanger == nil && (cfg.Resource != "" && (!cfg.AllowAnonymous || cfg.ServiceIdentity)) {
		return nil, fmt.Errorf("agent %s: resource %s requires a credential exchanger", cfg.ID, cfg.Resource)
	}
	return b, nil
}

// Info implements Agent.
func (b *Base) Info() Info {
	return Info{
		ID:          b.cfg.ID,
		Name:        b.cfg.Name,
		Description: b.cfg.Description,
		Domains:     append([]string(nil), b.cfg.Domains...),
		Kind:        b.cfg.Kind,
	}
}

// ListTools implements Agent.
func (b *Base) ListTools(ctx context.Context) []mcp.Tool {
	tools, err := b.listTools(ctx)
	if err != nil {
		b.logger.Warning("Agent %s: listing tools failed: %v", b.cfg.ID, err)
		return []mcp.Tool{}
	}
	return tools
}

// CanHandle implements Agent.
func (b *Base) CanHandle(ctx context.Context, name string) bool {
	for _, tool := range b.ListTools(ctx) {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func (b *Base) listTools(ctx context.Context) (tools []mcp.Tool, err error) {
	cred := Credential{}
	if b.cfg.ServiceIdentity && b.cfg.Resource != "" {
		tok, err := b.exchanger.ServiceToken(ctx, b.cfg.Resource)
		if err != nil {
			return nil, fmt.Errorf("service token: %w", err)
		}
		cred.Token = tok.Token
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while listing tools: %v", r)
		}
	}()

	tools, err = b.backend.ListTools(ctx, cred)
	if err != nil {
		return nil, err
	}
	if tools == nil {
		tools = []mcp.Tool{}
	}

	schemas := make(map[string]mcp.Tool, len(tools))
	for _, tool := range tools {
		schemas[tool.Name] = tool
	}
	b.schemas.Store(&schemas)
	return tools, nil
}

// Initialize implements Agent. Without a caller token or a downstream
// resource there is nothing to exchange and it succeeds immediately.
func (b *Base) Initialize(ctx context.Context, scope *Scope) error {
	if b.cfg.Resource == "" || !scope.HasCallerToken() {
		if b.cfg.Resource == "" || b.cfg.AllowAnonymous {
			b.initialized.Store(true)
		}
		return nil
	}

	if tok, ok := scope.Token(b.cfg.ID); ok && tok.Valid(b.now(), 0) {
		return nil
	}
	if b.exchanger == nil {
		err := fmt.Errorf("no credential exchanger configured for %s", b.cfg.Resource)
		scope.SetInitError(b.cfg.ID, err)
		return err
	}

	tok, err := b.exchanger.Exchange(ctx, scope.CallerToken(), b.cfg.Resource)
	if err != nil {
		scope.SetInitError(b.cfg.ID, err)
		b.metrics.AgentInitFailure(b.cfg.ID)
		return fmt.Errorf("initialize agent %s: %w", b.cfg.ID, err)
	}

	scope.SetToken(b.cfg.ID, tok)
	if !b.initialized.Swap(true) {
		b.logger.Success("Agent %s initialized", b.cfg.ID)
	}
	return nil
}

// Initialized reports whether Initialize has succeeded at least once.
func (b *Base) Initialized() bool {
	return b.initialized.Load()
}

// Execute implements Agent.
func (b *Base) Execute(ctx context.Context, scope *Scope, req mcp.CallToolRequest) *mcp.CallToolResult {
	name := req.Params.Name
	started := b.now()

	ctx, span := b.tracer.Start(ctx, "agent.execute",
		attribute.String("agent.id", b.cfg.ID),
		attribute.String("tool.name", name),
	)
	defer span.End()

	result := b.execute(ctx, scope, req)

	category := CategoryOf(result)
	status := "success"
	if result.IsError {
		status = "error"
		span.SetAttributes(attribute.String("tool.error_category", string(category)))
	}
	b.metrics.ObserveToolCall(name, b.cfg.ID, status, string(category), b.now().Sub(started))
	return result
}

func (b *Base) execute(ctx context.Context, scope *Scope, req mcp.CallToolRequest) *mcp.CallToolResult {
	name := req.Params.Name

	cred, failure := b.credentialFor(ctx, scope)
	if failure != nil {
		return failure
	}

	if schemas := b.schemas.Load(); schemas != nil {
		if tool, ok := (*schemas)[name]; ok {
			if err := validateArguments(tool, req.GetArguments()); err != nil {
				return ErrorResult(CategoryInvalidArguments, "Invalid arguments for tool %s: %v", name, err)
			}
		}
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	b.logger.Request("tools/call "+name, req.Params)
	result, err := b.callBackend(ctx, cred, req)
	if err != nil {
		return b.failureResult(ctx, name, err)
	}
	if result == nil {
		return ErrorResult(CategoryExecutionFailure, "Tool %s returned no result", name)
	}
	b.logger.Response("tools/call "+name, result)
	return result
}

// credentialFor resolves the credential for one call, or returns the error
// result to hand back instead.
func (b *Base) credentialFor(ctx context.Context, scope *Scope) (Credential, *mcp.CallToolResult) {
	if b.cfg.Resource == "" {
		return Credential{}, nil
	}

	if scope.HasCallerToken() {
		tok, ok := scope.Token(b.cfg.ID)
		if !ok || !tok.Valid(b.now(), 0) {
			if scope.InitError(b.cfg.ID) == nil {
				// Not initialized for this call yet.
				if err := b.Initialize(ctx, scope); err != nil {
					b.logger.Warning("Agent %s: %v", b.cfg.ID, err)
				}
				tok, ok = scope.Token(b.cfg.ID)
			}
		}
		if ok && tok.Valid(b.now(), 0) {
			return Credential{Token: tok.Token}, nil
		}
		if !b.cfg.AllowAnonymous {
			return Credential{}, b.authFailure(scope.InitError(b.cfg.ID))
		}
	} else if !b.cfg.AllowAnonymous {
		return Credential{}, b.authFailure(credentials.ErrNoCallerToken)
	}

	if !b.cfg.ServiceIdentity {
		return Credential{}, nil
	}
	tok, err := b.exchanger.ServiceToken(ctx, b.cfg.Resource)
	if err != nil {
		return Credential{}, b.authFailure(err)
	}
	return Credential{Token: tok.Token}, nil
}

func (b *Base) authFailure(err error) *mcp.CallToolResult {
	reason := "no delegated credential is available"
	if err != nil {
		reason = err.Error()
	}
	return ErrorResult(CategoryAuthExchangeFailure,
		"Could not obtain access to %s on your behalf: %s. Please sign in again or grant consent for %s.",
		b.cfg.Name, reason, b.cfg.Resource)
}

func (b *Base) failureResult(ctx context.Context, name string, err error) *mcp.CallToolResult {
	var authErr *DownstreamAuthError
	switch {
	case errors.As(err, &authErr):
		b.logger.Warning("Agent %s: %s rejected by downstream: %v", b.cfg.ID, name, authErr)
		if authErr.InsufficientScope() {
			return ErrorResult(CategoryAuthExchangeFailure,
				"%s denied tool %s: %v. Please grant the additional permissions and try again.", b.cfg.Name, name, authErr)
		}
		return ErrorResult(CategoryAuthExchangeFailure,
			"%s rejected your credentials for tool %s: %v. Please sign in again.", b.cfg.Name, name, authErr)
	case errors.Is(err, context.DeadlineExceeded) && b.cfg.Timeout > 0 && ctx.Err() != nil:
		b.logger.Error("Agent %s: %s timed out after %s", b.cfg.ID, name, b.cfg.Timeout)
		return ErrorResult(CategoryExecutionFailure, "Tool %s timed out after %s", name, b.cfg.Timeout)
	default:
		b.logger.Error("Agent %s: %s failed: %v", b.cfg.ID, name, err)
		return ErrorResult(CategoryExecutionFailure, "Tool %s failed: %v", name, err)
	}
}

func (b *Base) callBackend(ctx context.Context, cred Credential, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Debug("Agent %s panic stack:\n%s", b.cfg.ID, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.backend.CallTool(ctx, cred, req)
}

// CheckHealth implements Agent.
func (b *Base) CheckHealth(ctx context.Context) Health {
	health := Health{
		AgentID:     b.cfg.ID,
		Name:        b.cfg.Name,
		LastChecked: b.now(),
	}

	tools, err := b.listTools(ctx)
	switch {
	case err != nil:
		health.Status = fmt.Sprintf("unhealthy: %v", err)
	case len(tools) == 0:
		health.Status = "unhealthy: no tools available"
	default:
		health.Healthy = true
		health.Status = fmt.Sprintf("healthy: %d tools", len(tools))
	}

	b.lastHealth.Store(&health)
	b.metrics.SetAgentHealth(b.cfg.ID, health.Healthy)
	return health
}

// Status implements Agent.
func (b *Base) Status() Status {
	status := Status{Info: b.Info(), Initialized: b.initialized.Load()}
	if h := b.lastHealth.Load(); h != nil {
		last := *h
		status.LastHealth = &last
	}
	return status
}
