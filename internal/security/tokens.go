package security

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/platform/role"
)

var (
	// ErrInvalidToken is the single cause attached to every access token rejection.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnsupportedKey is returned when the signing key is neither RSA nor ECDSA.
	ErrUnsupportedKey = errors.New("unsupported signing key")
)

// refreshTokenBytes is the entropy of an opaque refresh token (256 bits).
const refreshTokenBytes = 32

// Claims is the signed claim set of an access token.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	StoreID   string `json:"store_id,omitempty"`
	SessionID string `json:"sid"`
}

// UserID returns the subject.
func (c *Claims) UserID() string { return c.Subject }

// ActorRole returns the parsed role; Unknown when the claim is not a known role.
func (c *Claims) ActorRole() role.Role {
	r, _ := role.Parse(c.Role)
	return r
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenProvider issues and verifies access tokens using RS256 or ES256 (private/public key)
// and mints opaque refresh tokens.
type TokenProvider struct {
	privateKey    crypto.Signer
	publicKey     crypto.PublicKey
	issuer        string
	audience      string
	accessTTL     time.Duration
	skew          time.Duration
	verifyTimeout time.Duration
	now           func() time.Time
}

// Option configures a TokenProvider.
type Option func(*TokenProvider)

// WithClockSkew sets the leeway applied to exp, nbf and iat on verification.
func WithClockSkew(d time.Duration) Option {
	return func(p *TokenProvider) { p.skew = d }
}

// WithVerifyTimeout bounds VerifyAccess. Zero leaves only the caller's deadline.
func WithVerifyTimeout(d time.Duration) Option {
	return func(p *TokenProvider) { p.verifyTimeout = d }
}

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(p *TokenProvider) { p.now = now }
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and required on verification.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration, opts ...Option) *TokenProvider {
	p := &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// IssueAccess signs an access token for the given session. storeID may be empty for
// platform-level actors. Returns the token string and its expiry.
func (p *TokenProvider) IssueAccess(userID string, r role.Role, storeID, sessionID string) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt := now.Add(p.accessTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:      r.String(),
		StoreID:   storeID,
		SessionID: sessionID,
	}
	token, err := p.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// IssueRefresh returns a new opaque refresh token: 256 random bits, base64url without padding.
// The plaintext is handed to the client once; only HashRefreshToken(token) is stored.
func (p *TokenProvider) IssueRefresh() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("refresh token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrUnsupportedKey
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// VerifyAccess parses and validates the access token (signature, exp/nbf/iat with skew, iss, aud).
// Every rejection, including an expired deadline, is apperr.Authentication("invalid_token");
// callers cannot tell malformed from expired.
func (p *TokenProvider) VerifyAccess(ctx context.Context, tokenString string) (*Claims, error) {
	if p.verifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.verifyTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, invalidToken(apperr.ErrTimeout)
	}

	type result struct {
		claims *Claims
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, err := p.parse(tokenString)
		done <- result{c, err}
	}()

	select {
	case <-ctx.Done():
		return nil, invalidToken(apperr.ErrTimeout)
	case r := <-done:
		if r.err != nil {
			return nil, invalidToken(ErrInvalidToken)
		}
		return r.claims, nil
	}
}

func (p *TokenProvider) parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(p.skew),
		jwt.WithTimeFunc(p.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.ActorRole() == role.Unknown {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func invalidToken(cause error) error {
	return apperr.AuthenticationCause("invalid_token", cause)
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
