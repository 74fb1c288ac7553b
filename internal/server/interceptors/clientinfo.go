package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	sessiondomain "storeguard/backend/internal/session/domain"
)

// maxUserAgent bounds what is stored with a session.
const maxUserAgent = 512

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if s := strings.TrimSpace(firstMD(ctx, "x-forwarded-for")); s != "" {
		if i := strings.Index(s, ","); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		return s
	}
	if s := strings.TrimSpace(firstMD(ctx, "x-real-ip")); s != "" {
		return s
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

// UserAgent returns the caller's user agent, truncated.
func UserAgent(ctx context.Context) string {
	ua := strings.TrimSpace(firstMD(ctx, "user-agent"))
	if len(ua) > maxUserAgent {
		ua = ua[:maxUserAgent]
	}
	return ua
}

// Device returns the device info recorded with a new session.
func Device(ctx context.Context) sessiondomain.DeviceInfo {
	return sessiondomain.DeviceInfo{IPAddress: ClientIP(ctx), UserAgent: UserAgent(ctx)}
}

func firstMD(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
