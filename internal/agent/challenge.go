package agent

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Challenge is a parsed WWW-Authenticate header (RFC 6750 Section 3).
type Challenge struct {
	Scheme              string
	Realm               string
	Error               string
	ErrorDescription    string
	ResourceMetadataURL string
	Scopes              []string
}

// DownstreamAuthError reports that a downstream service rejected the
// presented credential with 401 or 403.
type DownstreamAuthError struct {
	StatusCode int
	Challenge  *Challenge
}

func (e *DownstreamAuthError) Error() string {
	msg := fmt.Sprintf("downstream rejected credential (HTTP %d)", e.StatusCode)
	if e.Challenge != nil {
		if e.Challenge.Error != "" {
			msg += ": " + e.Challenge.Error
		}
		if e.Challenge.ErrorDescription != "" {
			msg += ": " + e.Challenge.ErrorDescription
		}
	}
	return msg
}

// InsufficientScope reports a 403 step-up challenge.
func (e *DownstreamAuthError) InsufficientScope() bool {
	return e.Challenge != nil && e.Challenge.Error == "insufficient_scope"
}

// IsDownstreamAuthError reports whether err carries a downstream 401/403.
func IsDownstreamAuthError(err error) bool {
	var authErr *DownstreamAuthError
	return errors.As(err, &authErr)
}

// authErrorFromResponse returns a *DownstreamAuthError for 401 and 403
// responses and nil otherwise.
func authErrorFromResponse(resp *http.Response) *DownstreamAuthError {
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return nil
	}
	authErr := &DownstreamAuthError{StatusCode: resp.StatusCode}
	if header := resp.Header.Get("WWW-Authenticate"); header != "" {
		authErr.Challenge, _ = parseWWWAuthenticate(header)
	}
	return authErr
}

// parseWWWAuthenticate parses a WWW-Authenticate header.
//
// Example headers:
//
//	Bearer realm="api", error="invalid_token", error_description="expired"
//	Bearer resource_metadata="https://api.example.com/.well-known/oauth-protected-resource", scope="files:read"
func parseWWWAuthenticate(header string) (*Challenge, error) {
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	challenge := &Challenge{Scheme: parts[0]}

	if len(parts) == 2 {
		params := parseAuthParams(parts[1])
		challenge.Realm = params["realm"]
		challenge.Error = params["error"]
		challenge.ErrorDescription = params["error_description"]
		challenge.ResourceMetadataURL = params["resource_metadata"]
		if scopeParam := params["scope"]; scopeParam != "" {
			challenge.Scopes = strings.Fields(scopeParam)
		}
	}

	return challenge, nil
}

// parseAuthParams parses comma-separated key=value pairs, respecting quotes.
func parseAuthParams(params string) map[string]string {
	result := make(map[string]string)

	for _, part := range splitPreservingQuotes(params, ',') {
		part = strings.TrimSpace(part)
		eqIdx := strings.Index(part, "=")
		if eqIdx == -1 {
			continue
		}

		key := strings.TrimSpace(part[:eqIdx])
		value := strings.TrimSpace(part[eqIdx+1:])
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		if key != "" {
			result[strings.ToLower(key)] = value
		}
	}

	return result
}

func splitPreservingQuotes(s string, delimiter byte) []string {
	var result []string
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteByte(ch)
		case ch == delimiter && !inQuotes:
			result = append(result, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}
