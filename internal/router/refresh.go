package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/giantswarm/mcp-toolrouter/internal/logging"
)

// DefaultRefreshSchedule is used when no schedule is configured.
const DefaultRefreshSchedule = "@every 1m"

var scheduleParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ParseSchedule validates a cron expression or descriptor such as "@every 30s".
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = DefaultRefreshSchedule
	}
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// Refresher periodically checks agent health and re-syncs the tools exposed
// by an MCPServer.
type Refresher struct {
	server   *MCPServer
	schedule cron.Schedule
	logger   *logging.Logger
}

// NewRefresher creates a refresher for srv running on the given schedule.
func NewRefresher(srv *MCPServer, expr string, logger *logging.Logger) (*Refresher, error) {
	if srv == nil {
		return nil, fmt.Errorf("server is required")
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	return &Refresher{server: srv, schedule: schedule, logger: logger}, nil
}

// RunOnce performs a single refresh and returns the number of registered tools.
func (r *Refresher) RunOnce(ctx context.Context) int {
	unhealthy := 0
	for _, h := range r.server.router.Health(ctx) {
		if !h.Healthy {
			unhealthy++
			r.logger.Debug("Agent %s is %s", h.AgentID, h.Status)
		}
	}
	if unhealthy > 0 {
		r.logger.Info("%d agent(s) unhealthy", unhealthy)
	}

	before := r.server.Registered()
	count := r.server.Sync(ctx)
	if count != len(before) {
		r.logger.Info("Tool set changed: %d -> %d tools", len(before), count)
	}
	return count
}

// Run refreshes on schedule until ctx is cancelled. Overlapping runs are
// skipped.
func (r *Refresher) Run(ctx context.Context) {
	c := cron.New(
		cron.WithParser(scheduleParser),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(r.schedule, cron.FuncJob(func() {
		r.RunOnce(ctx)
	}))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Debug("Tool refresher stopped")
}
