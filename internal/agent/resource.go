package agent

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultResource derives a canonical resource identifier from an endpoint
// URL per RFC 8707. It is used when an agent has no explicit resource.
//
// Canonicalization rules:
//   - Lowercase scheme and host
//   - Include port if non-standard (not 80/443)
//   - No trailing slash, fragment or query
//
// Examples:
//   - https://MAPS.Example.Com:443/mcp -> https://maps.example.com/mcp
//   - http://localhost:8090/mcp/ -> http://localhost:8090/mcp
func DefaultResource(endpoint string) (string, error) {
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	if parsedURL.Scheme == "" {
		return "", fmt.Errorf("endpoint URL missing scheme: %s", endpoint)
	}
	if parsedURL.Host == "" {
		return "", fmt.Errorf("endpoint URL missing host: %s", endpoint)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	host := strings.ToLower(parsedURL.Host)

	hostname, port, err := net.SplitHostPort(host)
	if err != nil {
		hostname = host
		port = ""
	}
	hostname = strings.Trim(hostname, "[]")

	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	host = hostname
	if port != "" {
		host += ":" + port
	}

	path := parsedURL.Path
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	return scheme + "://" + host + path, nil
}
