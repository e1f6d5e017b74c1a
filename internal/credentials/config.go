package credentials

import (
	"fmt"
	"net/url"
	"time"
)

const (
	defaultScopeSuffix = "/.default"
	defaultExpirySkew  = 2 * time.Minute
	defaultHTTPTimeout = 30 * time.Second
	defaultHTTPRetries = 2
)

// Config contains the confidential client used for On-Behalf-Of exchanges.
type Config struct {
	// Authority is the issuer URL. It is used to discover the token endpoint
	// when TokenURL is empty.
	Authority string

	// TokenURL is the identity provider's token endpoint (optional when Authority is set)
	TokenURL string

	// ClientID identifies this MCP server's own API registration
	ClientID string

	// ClientSecret authenticates ClientID at the token endpoint
	ClientSecret string

	// ScopeSuffix is appended to a downstream resource to build the requested
	// scope (default: /.default). Set to "-" to request the bare resource.
	ScopeSuffix string

	// ExpirySkew treats cached tokens as expired this long before their real
	// expiry (default: 2m)
	ExpirySkew time.Duration

	// HTTPTimeout bounds each call to the identity provider (default: 30s)
	HTTPTimeout time.Duration

	// HTTPRetries is how often a failed identity provider call is retried
	// (default: 2). Negative disables retries.
	HTTPRetries int
}

// WithDefaults returns a copy of the configuration with defaults applied.
func (c *Config) WithDefaults() *Config {
	cfg := *c
	if cfg.ScopeSuffix == "" {
		cfg.ScopeSuffix = defaultScopeSuffix
	}
	if cfg.ExpirySkew == 0 {
		cfg.ExpirySkew = defaultExpirySkew
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.HTTPRetries == 0 {
		cfg.HTTPRetries = defaultHTTPRetries
	}
	return &cfg
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client secret is required for the on-behalf-of flow")
	}
	if c.TokenURL == "" && c.Authority == "" {
		return fmt.Errorf("either token URL or authority is required")
	}
	if c.ExpirySkew < 0 {
		return fmt.Errorf("expiry skew must not be negative")
	}
	for name, raw := range map[string]string{"token URL": c.TokenURL, "authority": c.Authority} {
		if raw == "" {
			continue
		}
		if err := validateEndpointURL(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// validateEndpointURL only allows plain HTTP for loopback hosts.
func validateEndpointURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%q must be an absolute URL", raw)
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if isLocalhost(parsed.Host) {
			return nil
		}
		return fmt.Errorf("HTTP is only allowed for localhost/127.0.0.1/[::1], use HTTPS for %s", parsed.Host)
	default:
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
}

// isLocalhost checks if the given host is a loopback host, with or without port.
func isLocalhost(host string) bool {
	for _, h := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if host == h || len(host) > len(h) && host[:len(h)+1] == h+":" {
			return true
		}
	}
	return false
}
