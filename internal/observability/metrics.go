// Package observability holds the Prometheus metrics and OpenTelemetry tracing
// shared by the router, the agent manager and the credential exchanger.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Token exchange outcomes recorded by TokenExchange.
const (
	ExchangeHit   = "hit"
	ExchangeMiss  = "miss"
	ExchangeError = "error"
)

// UnknownTool is the tool label for calls no agent owns. Caller-supplied names
// never become label values.
const UnknownTool = "<unknown>"

// Metrics tracks tool routing and credential exchange.
//
// All helper methods are safe on a nil *Metrics so components can run without
// instrumentation (tests, embedding programs).
type Metrics struct {
	// ToolCalls counts tool executions.
	// Labels: tool, agent, status (success|error), category
	ToolCalls *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool, agent
	ToolDuration *prometheus.HistogramVec

	// TokenExchanges counts delegated token lookups.
	// Labels: resource, outcome (hit|miss|error)
	TokenExchanges *prometheus.CounterVec

	// AgentInitFailures counts failed per-caller agent initializations.
	// Labels: agent
	AgentInitFailures *prometheus.CounterVec

	// AgentHealthy is 1 when the last health check of an agent succeeded.
	// Labels: agent
	AgentHealthy *prometheus.GaugeVec
}

// NewMetrics creates the metric set and registers it with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_toolrouter_tool_calls_total",
				Help: "Total number of tool executions by tool, owning agent, status and error category",
			},
			[]string{"tool", "agent", "status", "category"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcp_toolrouter_tool_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool", "agent"},
		),
		TokenExchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_toolrouter_token_exchanges_total",
				Help: "Delegated token lookups by downstream resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		AgentInitFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_toolrouter_agent_init_failures_total",
				Help: "Failed per-caller agent initializations",
			},
			[]string{"agent"},
		),
		AgentHealthy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcp_toolrouter_agent_healthy",
				Help: "1 if the agent's last health check succeeded, 0 otherwise",
			},
			[]string{"agent"},
		),
	}
}

// ObserveToolCall records one tool execution.
func (m *Metrics) ObserveToolCall(tool, agent, status, category string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, agent, status, category).Inc()
	m.ToolDuration.WithLabelValues(tool, agent).Observe(d.Seconds())
}

// TokenExchange records a delegated token lookup.
func (m *Metrics) TokenExchange(resource, outcome string) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(resource, outcome).Inc()
}

// AgentInitFailure records a failed agent initialization.
func (m *Metrics) AgentInitFailure(agent string) {
	if m == nil {
		return
	}
	m.AgentInitFailures.WithLabelValues(agent).Inc()
}

// SetAgentHealth records the outcome of a health check.
func (m *Metrics) SetAgentHealth(agent string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.AgentHealthy.WithLabelValues(agent).Set(v)
}
