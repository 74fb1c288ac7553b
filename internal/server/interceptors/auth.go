package interceptors

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/security"
)

const bearerPrefix = "bearer "

// AccessVerifier verifies an access token.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*security.Claims, error)
}

// SessionValidator reports whether a session is still active. Access tokens of a revoked
// session are refused as soon as the revocation lands, not only at token expiry.
type SessionValidator func(ctx context.Context, sessionID string) (bool, error)

// AuthUnary returns a unary server interceptor that verifies the Bearer access token and puts
// the claims on the context for ClaimsFrom. publicMethods are full method names that run
// without a token; a bad token on a public method is ignored. validate may be nil.
func AuthUnary(verifier AccessVerifier, publicMethods map[string]bool, validate SessionValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		public := publicMethods[info.FullMethod]
		token := extractBearer(ctx)
		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, apperr.GRPCStatus(apperr.Authentication("missing_token")).Err()
		}

		claims, err := verifier.VerifyAccess(ctx, token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, apperr.GRPCStatus(err).Err()
		}
		if validate != nil && !public {
			ok, err := validate(ctx, claims.SessionID)
			if err != nil {
				return nil, apperr.GRPCStatus(apperr.Persistence(err)).Err()
			}
			if !ok {
				return nil, apperr.GRPCStatus(apperr.Authentication("session_revoked")).Err()
			}
		}
		zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("user_id", claims.UserID()).Str("session_id", claims.SessionID)
		})
		return handler(WithClaims(ctx, claims), req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	v := strings.TrimSpace(firstMD(ctx, "authorization"))
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
