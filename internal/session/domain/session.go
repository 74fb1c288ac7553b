package domain

import (
	"time"

	"storeguard/backend/internal/platform/role"
)

// Session is one issued refresh token per user/device. Rotation replaces RefreshTokenHash
// and ExpiresAt in place; the row is never duplicated.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string // SHA-256 hex of the current refresh token; the raw token is never stored
	Role             role.Role
	StoreID          string // store the session's access tokens are bound to; empty for platform actors
	ExpiresAt        time.Time
	IPAddress        string
	UserAgent        string
	IsRevoked        bool
	RevokedAt        *time.Time // nil when not revoked
	RevokeReason     RevokeReason
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// State is the lifecycle state of a session. Expired and Revoked are terminal.
type State int

const (
	StateActive State = iota
	StateExpired
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// State returns the session's state at now. Revocation wins over expiry.
func (s *Session) State(now time.Time) State {
	switch {
	case s.IsRevoked:
		return StateRevoked
	case !now.Before(s.ExpiresAt):
		return StateExpired
	default:
		return StateActive
	}
}

// Active reports whether the session is usable at now.
func (s *Session) Active(now time.Time) bool {
	return s.State(now) == StateActive
}

// RevokeReason records why a session ended.
type RevokeReason string

const (
	ReasonLogout   RevokeReason = "logout"
	ReasonEvicted  RevokeReason = "evicted"
	ReasonReplay   RevokeReason = "replay"
	ReasonConflict RevokeReason = "rotation_conflict"
	ReasonSecurity RevokeReason = "security"
	ReasonAdmin    RevokeReason = "admin"
)

// DeviceInfo is captured at login.
type DeviceInfo struct {
	IPAddress string
	UserAgent string
}
