// Package server exposes the session lifecycle and the access gate over gRPC.
package server

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"storeguard/backend/internal/server/interceptors"
)

// Deps are the collaborators New wires into the gRPC server.
type Deps struct {
	Sessions Sessions
	Data     Data
	Tokens   interceptors.AccessVerifier
	// SessionActive, when set, rejects access tokens of revoked sessions immediately.
	SessionActive interceptors.SessionValidator
	Health        *health.Server
	Logger        zerolog.Logger
}

// PublicMethods run without an access token.
var PublicMethods = map[string]bool{
	"/" + AuthServiceName + "/Login":     true,
	"/" + AuthServiceName + "/Refresh":   true,
	"/" + AuthServiceName + "/Logout":    true,
	healthpb.Health_Check_FullMethodName: true,
}

var quietMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
}

// New builds the gRPC server with recovery, logging and auth interceptors (in that order),
// OTel instrumentation, the health service and both application services.
func New(d Deps, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.RecoveryUnary(d.Logger),
			interceptors.LoggingUnary(d.Logger, quietMethods),
			interceptors.AuthUnary(d.Tokens, PublicMethods, d.SessionActive),
		),
	}
	srv := grpc.NewServer(append(base, opts...)...)

	if d.Health != nil {
		healthpb.RegisterHealthServer(srv, d.Health)
	}
	RegisterAuthServer(srv, NewAuthServer(d.Sessions))
	RegisterDataServer(srv, NewDataServer(d.Data))
	return srv
}

// ServiceNames lists the application services for health reporting.
func ServiceNames() []string {
	return []string{AuthServiceName, DataServiceName}
}
