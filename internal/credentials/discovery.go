package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/giantswarm/mcp-toolrouter/internal/logging"
)

const (
	// Maximum size for AS metadata documents (1MB)
	maxASMetadataSize = 1024 * 1024

	userAgent = "mcp-toolrouter/1.0"
)

// AuthorizationServerMetadata is the subset of RFC 8414 / OIDC Discovery
// metadata needed to run token exchanges.
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// DiscoverAuthorizationServerMetadata probes the RFC 8414 and OIDC discovery
// endpoints of issuerURL in priority order and returns the first valid document.
//
// For issuer URLs with path components (https://login.example.com/tenant/v2.0):
//  1. https://login.example.com/.well-known/oauth-authorization-server/tenant/v2.0
//  2. https://login.example.com/.well-known/openid-configuration/tenant/v2.0
//  3. https://login.example.com/tenant/v2.0/.well-known/openid-configuration
//
// Without a path only the first two forms (at the root) are tried.
func DiscoverAuthorizationServerMetadata(ctx context.Context, client *http.Client, issuerURL string, logger *logging.Logger) (*AuthorizationServerMetadata, error) {
	endpoints, err := buildASMetadataEndpoints(issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build AS metadata endpoints: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for i, endpoint := range endpoints {
		logger.InfoVerbose("Trying AS metadata endpoint (%d/%d): %s", i+1, len(endpoints), endpoint)

		metadata, err := fetchASMetadata(ctx, client, endpoint)
		if err == nil {
			err = validateASMetadata(metadata, issuerURL)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WarningVerbose("Discovery via %s failed: %v", endpoint, err)
			lastErr = err
			continue
		}

		logger.Info("Discovered token endpoint %s", metadata.TokenEndpoint)
		return metadata, nil
	}

	return nil, fmt.Errorf("no valid AS metadata found for %s (last error: %w)", issuerURL, lastErr)
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	return strings.TrimSuffix(p, "/")
}

// buildASMetadataEndpoints constructs discovery endpoints per RFC 8414
// Section 3 and OIDC Discovery Section 4.
func buildASMetadataEndpoints(issuerURL string) ([]string, error) {
	parsed, err := url.Parse(issuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("issuer URL must be absolute")
	}
	if err := validateEndpointURL(issuerURL); err != nil {
		return nil, err
	}

	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	path := normalizePath(parsed.Path)

	if path == "" {
		return []string{
			baseURL + "/.well-known/oauth-authorization-server",
			baseURL + "/.well-known/openid-configuration",
		}, nil
	}
	return []string{
		fmt.Sprintf("%s/.well-known/oauth-authorization-server/%s", baseURL, path),
		fmt.Sprintf("%s/.well-known/openid-configuration/%s", baseURL, path),
		fmt.Sprintf("%s/%s/.well-known/openid-configuration", baseURL, path),
	}, nil
}

func fetchASMetadata(ctx context.Context, client *http.Client, metadataURL string) (*AuthorizationServerMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "application/json") {
		return nil, fmt.Errorf("unexpected Content-Type: %s", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxASMetadataSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) >= maxASMetadataSize {
		return nil, fmt.Errorf("response exceeds maximum size of %d bytes", maxASMetadataSize)
	}

	var metadata AuthorizationServerMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &metadata, nil
}

// validateASMetadata checks the required fields and that the document was
// issued for issuerURL (RFC 8414 Section 3.3).
func validateASMetadata(metadata *AuthorizationServerMetadata, issuerURL string) error {
	if metadata.Issuer == "" {
		return fmt.Errorf("missing required field: issuer")
	}
	if strings.TrimSuffix(metadata.Issuer, "/") != strings.TrimSuffix(issuerURL, "/") {
		return fmt.Errorf("issuer mismatch: got %s, want %s", metadata.Issuer, issuerURL)
	}
	if metadata.TokenEndpoint == "" {
		return fmt.Errorf("missing required field: token_endpoint")
	}
	if err := validateEndpointURL(metadata.TokenEndpoint); err != nil {
		return fmt.Errorf("invalid token_endpoint: %w", err)
	}
	return nil
}
