// Package manager keeps the registry of agents, resolves which agent owns a
// tool and dispatches tool calls to it.
package manager

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/mcp-toolrouter/internal/agent"
	"github.com/giantswarm/mcp-toolrouter/internal/logging"
	"github.com/giantswarm/mcp-toolrouter/internal/observability"
)

// ErrDuplicateAgent is returned when an agent ID is registered twice.
var ErrDuplicateAgent = errors.New("duplicate agent ID")

// Manager holds agents in registration order. Agents are registered at boot
// and only read afterwards.
type Manager struct {
	mu     sync.RWMutex
	agents []agent.Agent
	ids    map[string]bool

	logger  *logging.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics records dispatch outcomes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithTracer wraps dispatches in spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(m *Manager) { m.tracer = tracer }
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{ids: make(map[string]bool), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterAgent appends a to the registry. Registration order decides
// ownership when two agents claim the same tool.
func (m *Manager) RegisterAgent(a agent.Agent) error {
	if a == nil {
		return fmt.Errorf("cannot register nil agent")
	}
	id := a.Info().ID

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids[id] {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, id)
	}
	m.ids[id] = true
	m.agents = append(m.agents, a)
	m.logger.Info("Registered agent %s (%s)", id, a.Info().Name)
	return nil
}

// Len returns the number of registered agents.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

func (m *Manager) snapshot() []agent.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]agent.Agent(nil), m.agents...)
}

// GetAllAvailableTools lists the tools of every agent, in registration order
// and then listing order. A failing agent contributes nothing.
func (m *Manager) GetAllAvailableTools(ctx context.Context) []mcp.Tool {
	tools := []mcp.Tool{}
	for _, a := range m.snapshot() {
		tools = append(tools, m.listTools(ctx, a)...)
	}
	return tools
}

func (m *Manager) listTools(ctx context.Context, a agent.Agent) (tools []mcp.Tool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Agent %s panicked while listing tools: %v", agentID(a), r)
			tools = nil
		}
	}()
	return a.ListTools(ctx)
}

// InitializeAllAgents initializes every agent for the caller in scope.
// Failures are logged and recorded in scope, never returned.
func (m *Manager) InitializeAllAgents(ctx context.Context, scope *agent.Scope) {
	for _, a := range m.snapshot() {
		if err := m.initialize(ctx, a, scope); err != nil {
			scope.SetInitError(agentID(a), err)
			m.logger.Warning("[%s] Agent %s could not be initialized: %v", scope.RequestID(), agentID(a), err)
		}
	}
}

func (m *Manager) initialize(ctx context.Context, a agent.Agent, scope *agent.Scope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during initialize: %v", r)
		}
	}()
	return a.Initialize(ctx, scope)
}

// ExecuteTool dispatches req to the first registered agent that can handle
// it. With a userToken, every agent is initialized for the caller before
// dispatch. The result is always non-nil.
func (m *Manager) ExecuteTool(ctx context.Context, req mcp.CallToolRequest, userToken string) *mcp.CallToolResult {
	name := req.Params.Name
	scope := agent.NewScope(userToken)
	started := m.now()

	ctx, span := m.tracer.Start(ctx, "manager.execute_tool",
		attribute.String("tool.name", name),
		attribute.String("request.id", scope.RequestID()),
		attribute.Bool("caller.authenticated", scope.HasCallerToken()),
	)
	defer span.End()

	m.logger.InfoVerbose("[%s] Executing tool %s", scope.RequestID(), name)

	if scope.HasCallerToken() {
		m.InitializeAllAgents(ctx, scope)
	}

	owner := m.findOwner(ctx, name)
	if owner == nil {
		m.logger.Warning("[%s] No agent provides tool %s", scope.RequestID(), name)
		m.metrics.ObserveToolCall(observability.UnknownTool, "", "error", string(agent.CategoryUnknownTool), m.now().Sub(started))
		return agent.ErrorResult(agent.CategoryUnknownTool, "No agent provides tool %q", name)
	}

	span.SetAttributes(attribute.String("agent.id", agentID(owner)))
	result := m.execute(ctx, owner, scope, req)
	if result.IsError {
		m.logger.Warning("[%s] Tool %s on agent %s returned an error (%s)", scope.RequestID(), name, agentID(owner), agent.CategoryOf(result))
	} else {
		m.logger.InfoVerbose("[%s] Tool %s on agent %s completed in %s", scope.RequestID(), name, agentID(owner), m.now().Sub(started).Round(time.Millisecond))
	}
	return result
}

func (m *Manager) findOwner(ctx context.Context, name string) agent.Agent {
	for _, a := range m.snapshot() {
		if m.canHandle(ctx, a, name) {
			return a
		}
	}
	return nil
}

func (m *Manager) canHandle(ctx context.Context, a agent.Agent, name string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Agent %s panicked in CanHandle: %v", agentID(a), r)
			ok = false
		}
	}()
	return a.CanHandle(ctx, name)
}

func (m *Manager) execute(ctx context.Context, a agent.Agent, scope *agent.Scope, req mcp.CallToolRequest) (result *mcp.CallToolResult) {
	name := req.Params.Name
	started := m.now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("[%s] Agent %s panicked executing %s: %v", scope.RequestID(), agentID(a), name, r)
			m.logger.Debug("%s", debug.Stack())
			m.metrics.ObserveToolCall(name, agentID(a), "error", string(agent.CategoryExecutionFailure), m.now().Sub(started))
			result = agent.ErrorResult(agent.CategoryExecutionFailure, "Tool %s failed: %v", name, r)
		}
	}()

	result = a.Execute(ctx, scope, req)
	if result == nil {
		result = agent.ErrorResult(agent.CategoryExecutionFailure, "Tool %s returned no result", name)
	}
	return result
}

// GetAllAgentHealth probes every agent, in registration order. A panicking
// probe marks only that agent unhealthy.
func (m *Manager) GetAllAgentHealth(ctx context.Context) []agent.Health {
	agents := m.snapshot()
	health := make([]agent.Health, 0, len(agents))
	for _, a := range agents {
		health = append(health, m.checkHealth(ctx, a))
	}
	return health
}

func (m *Manager) checkHealth(ctx context.Context, a agent.Agent) (h agent.Health) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Agent %s panicked during health check: %v", agentID(a), r)
			h = agent.Health{
				AgentID:     agentID(a),
				Name:        agentName(a),
				Healthy:     false,
				Status:      fmt.Sprintf("unhealthy: health check panicked: %v", r),
				LastChecked: m.now(),
			}
			m.metrics.SetAgentHealth(h.AgentID, false)
		}
	}()
	return a.CheckHealth(ctx)
}

// Agents returns the status of every agent, in registration order.
func (m *Manager) Agents() []agent.Status {
	agents := m.snapshot()
	statuses := make([]agent.Status, 0, len(agents))
	for _, a := range agents {
		statuses = append(statuses, a.Status())
	}
	return statuses
}

func agentID(a agent.Agent) (id string) {
	defer func() {
		if recover() != nil {
			id = "<unknown>"
		}
	}()
	return a.Info().ID
}

func agentName(a agent.Agent) (name string) {
	defer func() {
		if recover() != nil {
			name = "<unknown>"
		}
	}()
	return a.Info().Name
}
