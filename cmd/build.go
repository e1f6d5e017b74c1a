package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/giantswarm/mcp-toolrouter/internal/agent"
	"github.com/giantswarm/mcp-toolrouter/internal/config"
	"github.com/giantswarm/mcp-toolrouter/internal/credentials"
	"github.com/giantswarm/mcp-toolrouter/internal/logging"
	"github.com/giantswarm/mcp-toolrouter/internal/manager"
	"github.com/giantswarm/mcp-toolrouter/internal/observability"
	"github.com/giantswarm/mcp-toolrouter/internal/router"
)

// runtime is everything built from the configuration.
type runtime struct {
	router   *router.Router
	manager  *manager.Manager
	logger   *logging.Logger
	registry *prometheus.Registry
	shutdown func()
}

func buildRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*runtime, error) {
	rt := &runtime{logger: logger, shutdown: func() {}}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled() {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(rt.registry)
	}

	tracer, shutdownTracer, err := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Server.Name,
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		SamplingRate:   cfg.Observability.SamplingRate,
		Insecure:       cfg.Observability.Insecure,
	})
	if err != nil {
		logger.Warning("Tracing disabled: %v", err)
	}
	rt.shutdown = func() {
		if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
			logger.Warning("Failed to flush traces: %v", err)
		}
	}

	var exchanger agent.TokenExchanger
	if cfg.Auth.Enabled() {
		ex, err := credentials.New(cfg.Auth.Credentials(),
			credentials.WithLogger(logger),
			credentials.WithMetrics(metrics),
			credentials.WithTracer(tracer),
		)
		if err != nil {
			return nil, err
		}
		exchanger = ex
		logger.Info("On-behalf-of delegation enabled for client %s", cfg.Auth.ClientID)
	} else {
		logger.Warning("No auth section configured: calls are forwarded without delegated credentials")
	}

	rt.manager = manager.New(
		manager.WithLogger(logger),
		manager.WithMetrics(metrics),
		manager.WithTracer(tracer),
	)

	for _, ac := range cfg.Agents {
		backend, err := buildBackend(ac, logger)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
		}

		opts := []agent.Option{
			agent.WithLogger(logger),
			agent.WithMetrics(metrics),
			agent.WithTracer(tracer),
		}
		if exchanger != nil {
			opts = append(opts, agent.WithExchanger(exchanger))
		}

		a, err := agent.New(ac.AgentConfig(), backend, opts...)
		if err != nil {
			return nil, err
		}
		if err := rt.manager.RegisterAgent(a); err != nil {
			return nil, err
		}
	}

	if err := rt.manager.Validate(ctx); err != nil {
		if !cfg.Server.AllowDuplicateTools {
			return nil, fmt.Errorf("tool ownership check failed (use --allow-duplicate-tools to start anyway):\n%w", err)
		}
		logger.Warning("Tool ownership conflicts, the first registered agent wins:\n%v", err)
	}

	rt.router = router.New(rt.manager, logger)
	return rt, nil
}

func buildBackend(ac config.AgentConfig, logger *logging.Logger) (agent.Backend, error) {
	switch ac.Kind {
	case agent.KindMCP:
		return agent.NewMCPBackend(ac.Endpoint,
			agent.WithMCPLogger(logger),
			agent.WithClientInfo("mcp-toolrouter", version),
		), nil
	case agent.KindHTTP:
		return agent.NewHTTPBackend(ac.HTTPTools(), nil, logger)
	case agent.KindStatic:
		return agent.NewToolSet(ac.StaticTools()...), nil
	default:
		return nil, fmt.Errorf("unsupported kind %q", ac.Kind)
	}
}
