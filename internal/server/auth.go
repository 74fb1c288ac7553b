package server

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"storeguard/backend/internal/credential"
	"storeguard/backend/internal/lifecycle"
	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/server/interceptors"
	sessiondomain "storeguard/backend/internal/session/domain"
)

// Sessions is the lifecycle surface the auth service calls.
type Sessions interface {
	Login(ctx context.Context, req lifecycle.LoginRequest) (*lifecycle.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*lifecycle.TokenPair, error)
	Logout(ctx context.Context, target lifecycle.LogoutTarget) error
	ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID string, reason sessiondomain.RevokeReason) error
}

type authServer struct {
	sessions Sessions
}

// NewAuthServer returns the AuthService implementation.
func NewAuthServer(s Sessions) AuthServer {
	return &authServer{sessions: s}
}

func (a *authServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := decode(in)
	req := lifecycle.LoginRequest{
		Credential: credential.Credential{
			Email:    r.str("email"),
			Password: r.str("password"),
			IDToken:  r.str("id_token"),
		},
		StoreID: r.str("store_id"),
		Device:  interceptors.Device(ctx),
	}
	if r.err != nil {
		return nil, r.err
	}
	pair, err := a.sessions.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	return pairStruct(pair)
}

func (a *authServer) Refresh(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := decode(in)
	token := r.str("refresh_token")
	if r.err != nil {
		return nil, r.err
	}
	pair, err := a.sessions.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	return pairStruct(pair)
}

// Logout ends the session named by refresh_token, or else the caller's own session.
func (a *authServer) Logout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	r := decode(in)
	target := lifecycle.LogoutTarget{RefreshToken: r.str("refresh_token")}
	if r.err != nil {
		return nil, r.err
	}
	if target.RefreshToken == "" {
		if c, ok := interceptors.ClaimsFrom(ctx); ok {
			target.SessionID = c.SessionID
		}
	}
	if err := a.sessions.Logout(ctx, target); err != nil {
		return nil, err
	}
	return encode(map[string]any{})
}

func (a *authServer) ListSessions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	c, ok := interceptors.ClaimsFrom(ctx)
	if !ok {
		return nil, apperr.Authentication("missing_token")
	}
	list, err := a.sessions.ListSessions(ctx, c.UserID())
	if err != nil {
		return nil, err
	}
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = map[string]any{
			"id":         s.ID,
			"store_id":   s.StoreID,
			"role":       s.Role.String(),
			"ip_address": s.IPAddress,
			"user_agent": s.UserAgent,
			"created_at": s.CreatedAt.UTC().Format(time.RFC3339),
			"expires_at": s.ExpiresAt.UTC().Format(time.RFC3339),
			"current":    s.ID == c.SessionID,
		}
	}
	return encode(map[string]any{"sessions": out})
}

// RevokeSession ends one of the caller's own sessions, e.g. a lost device.
func (a *authServer) RevokeSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, ok := interceptors.ClaimsFrom(ctx)
	if !ok {
		return nil, apperr.Authentication("missing_token")
	}
	r := decode(in)
	id := r.str("session_id")
	if r.err == nil && id == "" {
		r.fail("session_id", "set")
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := a.sessions.RevokeSession(ctx, c.UserID(), id, sessiondomain.ReasonLogout); err != nil {
		return nil, err
	}
	return encode(map[string]any{})
}

func pairStruct(p *lifecycle.TokenPair) (*structpb.Struct, error) {
	return encode(map[string]any{
		"access_token":       p.AccessToken,
		"access_expires_at":  p.AccessExpiresAt.UTC().Format(time.RFC3339),
		"refresh_token":      p.RefreshToken,
		"refresh_expires_at": p.RefreshExpiresAt.UTC().Format(time.RFC3339),
		"session_id":         p.SessionID,
		"store_id":           p.StoreID,
	})
}
