package domain

import (
	"errors"
	"strings"
	"time"

	"storeguard/backend/internal/platform/role"
)

// User is an account that can sign in. Role is the account's highest role; per-store
// rights come from store assignments, not from this field.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         role.Role
	Status       UserStatus
	PasswordHash string // bcrypt; empty for accounts that only sign in through an external identity
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Active reports whether the user may sign in.
func (u *User) Active() bool {
	return u.Status == UserStatusActive
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Role == role.Unknown {
		return errors.New("role is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	if u.Status != UserStatusActive && u.Status != UserStatusDisabled {
		return errors.New("status must be active or disabled")
	}
	return nil
}

// ExternalIdentity links an identity provider subject to a local user.
type ExternalIdentity struct {
	Issuer  string
	Subject string
	UserID  string
}
