package interceptors

import (
	"context"

	"storeguard/backend/internal/security"
)

type contextKey struct{ name string }

var claimsKey = contextKey{"claims"}

// WithClaims returns a context carrying verified access token claims.
func WithClaims(ctx context.Context, c *security.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFrom returns the verified claims set by AuthUnary, or nil, false on a public call.
func ClaimsFrom(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*security.Claims)
	return c, ok && c != nil
}
