// Package config loads the mcp-toolrouter YAML configuration.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/mcp-toolrouter/internal/agent"
	"github.com/giantswarm/mcp-toolrouter/internal/credentials"
)

const (
	defaultServerName = "mcp-toolrouter"
	defaultTransport  = "stdio"
	defaultListenAddr = ":8899"
	defaultHTTPAddr   = ":8080"
	defaultAgentKind  = agent.KindMCP

	defaultRefreshSchedule = "@every 1m"
)

// Config is the complete router configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Agents        []AgentConfig       `yaml:"agents"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the exposed endpoints.
type ServerConfig struct {
	Name string `yaml:"name"`

	// Transport of the MCP endpoint: stdio or streamable-http
	Transport string `yaml:"transport"`

	// ListenAddr of the streamable-http MCP endpoint
	ListenAddr string `yaml:"listen_addr"`

	// HTTPAddr of the REST API and /metrics. "-" disables it.
	HTTPAddr string `yaml:"http_addr"`

	// AllowDuplicateTools skips the startup ownership check.
	AllowDuplicateTools bool `yaml:"allow_duplicate_tools"`

	// RefreshSchedule is a cron expression or descriptor for the periodic
	// health check and tool re-sync. "off" disables it.
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// AuthConfig configures the On-Behalf-Of client. Leaving client_id empty
// disables delegation.
type AuthConfig struct {
	Authority    string        `yaml:"authority"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	ScopeSuffix  string        `yaml:"scope_suffix"`
	ExpirySkew   time.Duration `yaml:"expiry_skew"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	HTTPRetries  int           `yaml:"http_retries"`
}

// Enabled reports whether an OBO client is configured.
func (a AuthConfig) Enabled() bool {
	return a.ClientID != ""
}

// Credentials converts the section into the exchanger configuration.
func (a AuthConfig) Credentials() *credentials.Config {
	return &credentials.Config{
		Authority:    a.Authority,
		TokenURL:     a.TokenURL,
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		ScopeSuffix:  a.ScopeSuffix,
		ExpirySkew:   a.ExpirySkew,
		HTTPTimeout:  a.HTTPTimeout,
		HTTPRetries:  a.HTTPRetries,
	}
}

// AgentConfig describes one agent.
type AgentConfig struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	Description     string        `yaml:"description"`
	Domains         []string      `yaml:"domains"`
	Kind            string        `yaml:"kind"`
	Endpoint        string        `yaml:"endpoint"`
	Resource        string        `yaml:"resource"`
	AllowAnonymous  bool          `yaml:"allow_anonymous"`
	ServiceIdentity bool          `yaml:"service_identity"`
	Timeout         time.Duration `yaml:"timeout"`
	Tools           []ToolConfig  `yaml:"tools"`
}

// ToolConfig declares a tool of an http or static agent.
type ToolConfig struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Method      string           `yaml:"method"`
	URL         string           `yaml:"url"`
	Response    string           `yaml:"response"`
	InputSchema InputSchemaConfig `yaml:"input_schema"`
}

// InputSchemaConfig is the subset of JSON Schema accepted for declared tools.
type InputSchemaConfig struct {
	Properties map[string]PropertyConfig `yaml:"properties"`
	Required   []string                  `yaml:"required"`
}

// PropertyConfig declares one tool argument.
type PropertyConfig struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	Verbose      bool    `yaml:"verbose"`
	JSONRPC      bool    `yaml:"json_rpc"`
	NoColor      bool    `yaml:"no_color"`
	Metrics      *bool   `yaml:"metrics"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// MetricsEnabled reports whether /metrics is served (default: true).
func (o ObservabilityConfig) MetricsEnabled() bool {
	return o.Metrics == nil || *o.Metrics
}

// Load reads the configuration file at path, expanding ${VAR} references
// from the environment. Files ending in .json or .json5 are read as JSON5,
// everything else as YAML. Defaults are applied; the result is not validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		data, err = json5ToYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to parse config: %w", path, err)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// envReference matches ${VAR}. Bare $ signs are left alone so secrets and
// URLs may contain them.
var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(data []byte) []byte {
	return envReference.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// Parse decodes a YAML document after expanding ${VAR} references. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// json5ToYAML re-encodes a JSON5 document so it goes through the same strict
// decoder as YAML files.
func json5ToYAML(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := json5.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return yaml.Marshal(raw)
}

// WithDefaults returns a copy of the configuration with defaults applied.
func (c *Config) WithDefaults() *Config {
	cfg := *c
	if cfg.Server.Name == "" {
		cfg.Server.Name = defaultServerName
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = defaultTransport
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = defaultHTTPAddr
	}
	if cfg.Server.RefreshSchedule == "" {
		cfg.Server.RefreshSchedule = defaultRefreshSchedule
	}

	cfg.Agents = make([]AgentConfig, len(c.Agents))
	for i, a := range c.Agents {
		if a.Kind == "" {
			a.Kind = defaultAgentKind
		}
		if a.Name == "" {
			a.Name = a.ID
		}
		if a.Resource == "" && a.Kind == agent.KindMCP && cfg.Auth.Enabled() {
			// Unparseable endpoints are reported by Validate.
			if resource, err := agent.DefaultResource(a.Endpoint); err == nil {
				a.Resource = resource
			}
		}
		cfg.Agents[i] = a
	}
	return &cfg
}

// HTTPEnabled reports whether the REST API is served.
func (s ServerConfig) HTTPEnabled() bool {
	return s.HTTPAddr != "-"
}

// RefreshEnabled reports whether the periodic refresher runs.
func (s ServerConfig) RefreshEnabled() bool {
	return s.RefreshSchedule != "off"
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "streamable-http":
	default:
		return fmt.Errorf("unsupported server transport %q (stdio, streamable-http)", c.Server.Transport)
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1")
	}

	if c.Auth.Enabled() {
		if err := c.Auth.Credentials().WithDefaults().Validate(); err != nil {
			return fmt.Errorf("invalid auth configuration: %w", err)
		}
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent %d: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("agent %s: duplicate id", a.ID)
		}
		seen[a.ID] = true
		if err := a.validate(c.Auth.Enabled()); err != nil {
			return fmt.Errorf("agent %s: %w", a.ID, err)
		}
	}
	return nil
}

func (a AgentConfig) validate(authEnabled bool) error {
	if a.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	switch a.Kind {
	case agent.KindMCP:
		if a.Endpoint == "" {
			return fmt.Errorf("endpoint is required for mcp agents")
		}
		if _, err := agent.DefaultResource(a.Endpoint); err != nil {
			return fmt.Errorf("invalid endpoint: %w", err)
		}
		if len(a.Tools) > 0 {
			return fmt.Errorf("mcp agents discover their tools; remove the tools list")
		}
	case agent.KindHTTP, agent.KindStatic:
		if len(a.Tools) == 0 {
			return fmt.Errorf("%s agents need at least one tool", a.Kind)
		}
		for _, t := range a.Tools {
			if t.Name == "" {
				return fmt.Errorf("tool name is required")
			}
			if a.Kind == agent.KindHTTP && t.URL == "" {
				return fmt.Errorf("tool %s: url is required", t.Name)
			}
		}
	default:
		return fmt.Errorf("unsupported kind %q (mcp, http, static)", a.Kind)
	}

	if a.Resource != "" && !authEnabled && (!a.AllowAnonymous || a.ServiceIdentity) {
		return fmt.Errorf("resource %s needs the auth section to be configured", a.Resource)
	}
	return nil
}

// AgentConfig converts the section into the agent configuration.
func (a AgentConfig) AgentConfig() agent.Config {
	return agent.Config{
		ID:              a.ID,
		Name:            a.Name,
		Description:     a.Description,
		Domains:         append([]string(nil), a.Domains...),
		Kind:            a.Kind,
		Resource:        a.Resource,
		AllowAnonymous:  a.AllowAnonymous,
		ServiceIdentity: a.ServiceIdentity,
		Timeout:         a.Timeout,
	}
}

// HTTPTools converts the tools of an http agent.
func (a AgentConfig) HTTPTools() []agent.HTTPTool {
	tools := make([]agent.HTTPTool, 0, len(a.Tools))
	for _, t := range a.Tools {
		tools = append(tools, agent.HTTPTool{
			Name:        t.Name,
			Description: t.Description,
			Method:      strings.ToUpper(t.Method),
			URL:         t.URL,
			InputSchema: t.InputSchema.toolInputSchema(),
		})
	}
	return tools
}

// StaticTools converts the tools of a static agent. Each tool answers with
// its configured response text.
func (a AgentConfig) StaticTools() []agent.StaticTool {
	tools := make([]agent.StaticTool, 0, len(a.Tools))
	for _, t := range a.Tools {
		tool := mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema.toolInputSchema(),
		}
		response := t.Response
		tools = append(tools, agent.StaticTool{
			Tool: tool,
			Handler: func(context.Context, agent.Credential, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText(response), nil
			},
		})
	}
	return tools
}

func (s InputSchemaConfig) toolInputSchema() mcp.ToolInputSchema {
	schema := mcp.ToolInputSchema{
		Type:       "object",
		Properties: make(map[string]interface{}, len(s.Properties)),
		Required:   append([]string(nil), s.Required...),
	}
	for name, p := range s.Properties {
		prop := map[string]interface{}{}
		if p.Type != "" {
			prop["type"] = p.Type
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		schema.Properties[name] = prop
	}
	return schema
}
