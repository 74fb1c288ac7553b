package credential

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"storeguard/backend/internal/platform/apperr"
)

// OIDCVerifier accepts ID tokens from one OpenID Connect issuer and maps (issuer, sub) to a
// local user through a previously recorded external identity link. Unlinked subjects are rejected.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	users    UserLookup
}

// NewOIDCVerifier discovers issuerURL's keys and returns a verifier that requires aud == clientID.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string, users UserLookup) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	return NewOIDCVerifierFrom(provider.Verifier(&oidc.Config{ClientID: clientID}), users), nil
}

// NewOIDCVerifierFrom wraps an existing go-oidc verifier (e.g. one built on a static key set).
func NewOIDCVerifierFrom(v *oidc.IDTokenVerifier, users UserLookup) *OIDCVerifier {
	return &OIDCVerifier{verifier: v, users: users}
}

// Verify implements Verifier.
func (v *OIDCVerifier) Verify(ctx context.Context, c Credential) (*Identity, error) {
	tok, err := v.verifier.Verify(ctx, c.IDToken)
	if err != nil {
		return nil, apperr.AuthenticationCause("invalid_credentials", err)
	}
	u, err := v.users.GetByExternalIdentity(ctx, tok.Issuer, tok.Subject)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if u == nil || !u.Active() {
		return nil, invalidCredentials()
	}
	return &Identity{UserID: u.ID, Role: u.Role}, nil
}
