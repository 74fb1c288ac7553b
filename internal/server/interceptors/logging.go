package interceptors

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"storeguard/backend/internal/audit"
)

// LoggingUnary logs one line per RPC and puts a request-scoped logger on the context for
// zerolog.Ctx; AuthUnary adds the caller to it. Chain it before AuthUnary. skipMethods are not logged (e.g. health checks).
func LoggingUnary(logger zerolog.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ar := audit.ParseFullMethod(info.FullMethod)
		ctx = logger.With().Str("method", info.FullMethod).Str("client_ip", ClientIP(ctx)).Logger().WithContext(ctx)
		l := zerolog.Ctx(ctx)

		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}

		code := status.Code(err)
		ev := l.Info()
		if err != nil {
			ev = l.Warn()
		}
		ev.Str("resource", ar.Resource).
			Str("action", ar.Action).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("rpc")
		return resp, err
	}
}

// RecoveryUnary turns a handler panic into an Internal error and logs it.
func RecoveryUnary(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Str("method", info.FullMethod).Msg("handler panic")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
