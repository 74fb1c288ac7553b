// Package credential verifies login credentials and yields the verified user and role.
package credential

import (
	"context"
	"strings"

	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/platform/role"
	userdomain "storeguard/backend/internal/user/domain"
)

// Credential is what a client presents at login: either Email and Password, or an
// IDToken from the configured external identity provider.
type Credential struct {
	Email    string
	Password string
	IDToken  string
}

// Identity is a verified principal.
type Identity struct {
	UserID string
	Role   role.Role
}

// Verifier checks a credential. Every rejection is apperr.Authentication("invalid_credentials")
// so callers cannot tell an unknown account from a wrong password.
type Verifier interface {
	Verify(ctx context.Context, c Credential) (*Identity, error)
}

// UserLookup is the minimal user repository needed by the verifiers.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByExternalIdentity(ctx context.Context, issuer, subject string) (*userdomain.User, error)
}

func invalidCredentials() error {
	return apperr.Authentication("invalid_credentials")
}

// Chain dispatches on the credential's shape: IDToken goes to External, anything else to Password.
type Chain struct {
	Password Verifier
	External Verifier // nil disables external-identity login
}

// Verify implements Verifier.
func (c *Chain) Verify(ctx context.Context, cred Credential) (*Identity, error) {
	if strings.TrimSpace(cred.IDToken) != "" {
		if c.External == nil {
			return nil, invalidCredentials()
		}
		return c.External.Verify(ctx, cred)
	}
	if c.Password == nil {
		return nil, invalidCredentials()
	}
	return c.Password.Verify(ctx, cred)
}
