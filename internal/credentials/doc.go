// Package credentials exchanges a caller's access token for tokens scoped to
// downstream resources using the OAuth 2.0 On-Behalf-Of flow, and issues
// client-credentials tokens for the server's own identity.
//
// Tokens are cached per caller token and resource until they come within the
// configured skew of their expiry. Exchanges for different keys run
// concurrently; concurrent requests for the same key share one exchange.
package credentials
