package agent

import (
	"net/http"
	"sync"
)

// bearerRoundTripper attaches a bearer token to every request and remembers
// the first 401/403 it sees. One instance serves a single downstream call.
type bearerRoundTripper struct {
	transport http.RoundTripper
	token     string

	mu       sync.Mutex
	rejected *DownstreamAuthError
}

func newBearerRoundTripper(token string, base http.RoundTripper) *bearerRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerRoundTripper{transport: base, token: token}
}

// RoundTrip implements the http.RoundTripper interface
func (rt *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clonedReq := req.Clone(req.Context())
	if rt.token != "" {
		clonedReq.Header.Set("Authorization", "Bearer "+rt.token)
	}

	resp, err := rt.transport.RoundTrip(clonedReq)
	if err != nil {
		return nil, err
	}

	if authErr := authErrorFromResponse(resp); authErr != nil {
		rt.mu.Lock()
		if rt.rejected == nil {
			rt.rejected = authErr
		}
		rt.mu.Unlock()
	}
	return resp, nil
}

// Rejection returns the recorded downstream auth failure, if any.
func (rt *bearerRoundTripper) Rejection() *DownstreamAuthError {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.rejected
}
