package router

import (
	"context"
	"net/http"
	"strings"
)

type callerTokenKey struct{}

// WithCallerToken stores the caller's access token in ctx.
func WithCallerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, callerTokenKey{}, token)
}

// CallerToken returns the token stored by WithCallerToken, or "".
func CallerToken(ctx context.Context) string {
	token, _ := ctx.Value(callerTokenKey{}).(string)
	return token
}

// BearerToken extracts the token of an "Authorization: Bearer" header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requestContext copies the bearer token of r into ctx.
func requestContext(ctx context.Context, r *http.Request) context.Context {
	if token := BearerToken(r.Header.Get("Authorization")); token != "" {
		return WithCallerToken(ctx, token)
	}
	return ctx
}
