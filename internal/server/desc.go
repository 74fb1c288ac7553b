package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"storeguard/backend/internal/platform/apperr"
)

// Service names as seen on the wire.
const (
	AuthServiceName = "storeguard.v1.AuthService"
	DataServiceName = "storeguard.v1.DataService"
)

// AuthServer is the session surface. Messages are google.protobuf.Struct.
type AuthServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RevokeSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// DataServer is the tenant-scoped data surface.
type DataServer interface {
	FindMany(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindUnique(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Count(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Batch(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structHandler func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(service, name string, pick func(srv any) structHandler) grpc.MethodDesc {
	full := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req any) (any, error) {
				out, err := pick(srv)(ctx, req.(*structpb.Struct))
				if err != nil {
					return nil, toStatus(err)
				}
				return out, nil
			}
			if interceptor == nil {
				return h(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, h)
		},
	}
}

// toStatus renders err with only its safe message; status errors pass through.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return apperr.GRPCStatus(err).Err()
}

func authMethod(name string, pick func(AuthServer) structHandler) grpc.MethodDesc {
	return method(AuthServiceName, name, func(srv any) structHandler { return pick(srv.(AuthServer)) })
}

func dataMethod(name string, pick func(DataServer) structHandler) grpc.MethodDesc {
	return method(DataServiceName, name, func(srv any) structHandler { return pick(srv.(DataServer)) })
}

var authServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		authMethod("Login", func(s AuthServer) structHandler { return s.Login }),
		authMethod("Refresh", func(s AuthServer) structHandler { return s.Refresh }),
		authMethod("Logout", func(s AuthServer) structHandler { return s.Logout }),
		authMethod("ListSessions", func(s AuthServer) structHandler { return s.ListSessions }),
		authMethod("RevokeSession", func(s AuthServer) structHandler { return s.RevokeSession }),
	},
	Metadata: "storeguard/v1/auth",
}

var dataServiceDesc = grpc.ServiceDesc{
	ServiceName: DataServiceName,
	HandlerType: (*DataServer)(nil),
	Methods: []grpc.MethodDesc{
		dataMethod("FindMany", func(s DataServer) structHandler { return s.FindMany }),
		dataMethod("FindUnique", func(s DataServer) structHandler { return s.FindUnique }),
		dataMethod("Create", func(s DataServer) structHandler { return s.Create }),
		dataMethod("Update", func(s DataServer) structHandler { return s.Update }),
		dataMethod("Delete", func(s DataServer) structHandler { return s.Delete }),
		dataMethod("Count", func(s DataServer) structHandler { return s.Count }),
		dataMethod("Batch", func(s DataServer) structHandler { return s.Batch }),
	},
	Metadata: "storeguard/v1/data",
}

// RegisterAuthServer registers srv under AuthServiceName.
func RegisterAuthServer(r grpc.ServiceRegistrar, srv AuthServer) {
	r.RegisterService(&authServiceDesc, srv)
}

// RegisterDataServer registers srv under DataServiceName.
func RegisterDataServer(r grpc.ServiceRegistrar, srv DataServer) {
	r.RegisterService(&dataServiceDesc, srv)
}
