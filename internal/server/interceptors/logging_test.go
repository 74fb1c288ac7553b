package interceptors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingUnary_LogsCallerAndCode(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	tokens := newTokens(t)
	logging := LoggingUnary(logger, nil)
	auth := AuthUnary(tokens, nil, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/storeguard.v1.DataService/FindMany"}
	_, err := logging(bearerCtx(t, tokens), nil, info, func(ctx context.Context, req any) (any, error) {
		return auth(ctx, req, info, func(context.Context, any) (any, error) {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		})
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("err = %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line: %v (%q)", err, buf.String())
	}
	for k, want := range map[string]string{
		"level": "warn", "user_id": "user-1", "session_id": "session-1",
		"resource": "data", "action": "read", "code": "PermissionDenied",
	} {
		if line[k] != want {
			t.Errorf("%s = %v, want %q", k, line[k], want)
		}
	}
}

func TestLoggingUnary_SkipMethod(t *testing.T) {
	var buf bytes.Buffer
	logging := LoggingUnary(zerolog.New(&buf), map[string]bool{"/grpc.health.v1.Health/Check": true})
	_, _ = logging(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, okHandler)
	if buf.Len() != 0 {
		t.Errorf("skipped method logged: %q", buf.String())
	}
}

func TestRecoveryUnary(t *testing.T) {
	var buf bytes.Buffer
	recovery := RecoveryUnary(zerolog.New(&buf))
	_, err := recovery(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic(errors.New("boom"))
	})
	if status.Code(err) != codes.Internal {
		t.Errorf("code = %v, want Internal", status.Code(err))
	}
	if !strings.Contains(buf.String(), "handler panic") {
		t.Errorf("panic not logged: %q", buf.String())
	}
}
