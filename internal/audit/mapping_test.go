package audit

import "testing"

func TestParseFullMethod(t *testing.T) {
	tests := []struct {
		fullMethod string
		action     string
		resource   string
	}{
		{"/storeguard.v1.DataService/FindMany", "read", "data"},
		{"/storeguard.v1.DataService/FindUnique", "read", "data"},
		{"/storeguard.v1.DataService/Count", "read", "data"},
		{"/storeguard.v1.DataService/Create", "write", "data"},
		{"/storeguard.v1.DataService/Update", "write", "data"},
		{"/storeguard.v1.DataService/Delete", "write", "data"},
		{"/storeguard.v1.DataService/Batch", "write", "data"},
		{"/storeguard.v1.AuthService/Login", "login", "auth"},
		{"/storeguard.v1.AuthService/ListSessions", "read", "auth"},
		{"/grpc.health.v1.Health/Check", "check", "health"},
		{"/NoPackage/Method", "method", "unknown"},
		{"garbage", "unknown", "unknown"},
		{"/storeguard.v1.Service/Login", "login", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.fullMethod, func(t *testing.T) {
			ar := ParseFullMethod(tt.fullMethod)
			if ar.Action != tt.action {
				t.Errorf("action = %q, want %q", ar.Action, tt.action)
			}
			if ar.Resource != tt.resource {
				t.Errorf("resource = %q, want %q", ar.Resource, tt.resource)
			}
		})
	}
}
