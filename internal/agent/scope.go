package agent

import (
	"sync"

	"github.com/google/uuid"

	"github.com/giantswarm/mcp-toolrouter/internal/credentials"
)

// Scope carries the credentials of a single tool call. Delegated tokens live
// here, keyed by agent ID, and never on the agents themselves, so concurrent
// callers cannot see each other's tokens. A nil *Scope is an anonymous call.
type Scope struct {
	requestID   string
	callerToken string

	mu       sync.RWMutex
	tokens   map[string]*credentials.DelegatedToken
	failures map[string]error
}

// NewScope creates a scope for one call. callerToken may be empty.
func NewScope(callerToken string) *Scope {
	return &Scope{
		requestID:   uuid.NewString(),
		callerToken: callerToken,
		tokens:      make(map[string]*credentials.DelegatedToken),
		failures:    make(map[string]error),
	}
}

// RequestID identifies the call in logs.
func (s *Scope) RequestID() string {
	if s == nil {
		return ""
	}
	return s.requestID
}

// CallerToken returns the caller's access token, or "".
func (s *Scope) CallerToken() string {
	if s == nil {
		return ""
	}
	return s.callerToken
}

// HasCallerToken reports whether the call carries a caller token.
func (s *Scope) HasCallerToken() bool {
	return s.CallerToken() != ""
}

// Token returns the delegated token for agentID.
func (s *Scope) Token(agentID string) (*credentials.DelegatedToken, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[agentID]
	return tok, ok
}

// SetToken records the delegated token for agentID and clears any earlier
// initialization failure.
func (s *Scope) SetToken(agentID string, tok *credentials.DelegatedToken) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[agentID] = tok
	delete(s.failures, agentID)
}

// InitError returns the recorded initialization failure for agentID.
func (s *Scope) InitError(agentID string) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures[agentID]
}

// SetInitError records why agentID could not be initialized.
func (s *Scope) SetInitError(agentID string, err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[agentID] = err
}

// Failures returns a copy of all recorded initialization failures.
func (s *Scope) Failures() map[string]error {
	out := make(map[string]error)
	if s == nil {
		return out
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, err := range s.failures {
		out[id] = err
	}
	return out
}
