package manager

import (
	"context"
	"errors"
	"fmt"
)

// DuplicateToolError reports a tool advertised by more than one agent.
type DuplicateToolError struct {
	Tool        string
	FirstAgent  string
	SecondAgent string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is provided by both %s and %s", e.Tool, e.FirstAgent, e.SecondAgent)
}

// Validate lists every agent's tools and reports each tool name claimed by
// more than one agent. At dispatch time the first registered agent wins; this
// check turns that situation into a startup error.
func (m *Manager) Validate(ctx context.Context) error {
	owners := make(map[string]string)
	var errs []error

	for _, a := range m.snapshot() {
		id := agentID(a)
		tools := m.listTools(ctx, a)
		if len(tools) == 0 {
			m.logger.Warning("Agent %s currently offers no tools", id)
		}
		for _, tool := range tools {
			first, taken := owners[tool.Name]
			switch {
			case !taken:
				owners[tool.Name] = id
			case first != id:
				errs = append(errs, &DuplicateToolError{Tool: tool.Name, FirstAgent: first, SecondAgent: id})
			}
		}
	}

	m.logger.InfoVerbose("Validated %d tools across %d agents", len(owners), m.Len())
	return errors.Join(errs...)
}
