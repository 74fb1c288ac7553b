package credential

import (
	"context"
	"strings"

	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/security"
)

// PasswordVerifier checks email and password against the bcrypt hash on the user record.
type PasswordVerifier struct {
	users  UserLookup
	hasher *security.Hasher
}

// NewPasswordVerifier returns a PasswordVerifier.
func NewPasswordVerifier(users UserLookup, hasher *security.Hasher) *PasswordVerifier {
	return &PasswordVerifier{users: users, hasher: hasher}
}

// Verify implements Verifier. Unknown and password-less accounts still cost one bcrypt
// comparison so response time does not reveal whether the email exists.
func (v *PasswordVerifier) Verify(ctx context.Context, c Credential) (*Identity, error) {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" || c.Password == "" {
		return nil, invalidCredentials()
	}
	u, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if u == nil || u.PasswordHash == "" {
		v.hasher.CompareDummy([]byte(c.Password))
		return nil, invalidCredentials()
	}
	if err := v.hasher.Compare(u.PasswordHash, []byte(c.Password)); err != nil {
		return nil, invalidCredentials()
	}
	if !u.Active() {
		return nil, invalidCredentials()
	}
	return &Identity{UserID: u.ID, Role: u.Role}, nil
}
