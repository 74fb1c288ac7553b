// Package lifecycle orchestrates login, refresh rotation, and revocation of sessions.
// It is the only component that writes session state; the access gate reads nothing
// from it except the claims it minted.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"storeguard/backend/internal/credential"
	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/platform/role"
	"storeguard/backend/internal/security"
	sessiondomain "storeguard/backend/internal/session/domain"
	sessionrepo "storeguard/backend/internal/session/repository"
	"storeguard/backend/internal/telemetry"
)

// StoreAccess decides whether a user may bind a session to a store at login.
type StoreAccess interface {
	HasAccess(ctx context.Context, userID, storeID string, op role.Operation) (bool, error)
}

// Config holds the lifecycle tunables. Zero values fall back to the defaults noted per field.
type Config struct {
	RefreshTTL         time.Duration // 168h
	MaxSessionsPerUser int           // 5
	GraceWindow        time.Duration // 5m
	RefreshTimeout     time.Duration // 5s
	ReuseGrace         time.Duration // 0 disables
}

func (c *Config) applyDefaults() {
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 168 * time.Hour
	}
	if c.MaxSessionsPerUser < 1 {
		c.MaxSessionsPerUser = 5
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = 5 * time.Minute
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 5 * time.Second
	}
	if c.ReuseGrace < 0 {
		c.ReuseGrace = 0
	}
}

// TokenPair is what login and refresh hand back to the client. RefreshToken is plaintext
// exactly once; the server keeps only its hash.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
	StoreID          string
}

// LoginRequest is the input to Login. StoreID optionally binds the session to one store.
type LoginRequest struct {
	Credential credential.Credential
	StoreID    string
	Device     sessiondomain.DeviceInfo
}

// LogoutTarget names the session to end: by id, or by a refresh token the client holds.
type LogoutTarget struct {
	SessionID    string
	RefreshToken string
}

// Manager owns the session state machine ACTIVE -> ACTIVE | EXPIRED | REVOKED.
type Manager struct {
	sessions sessionrepo.Repository
	tokens   *security.TokenProvider
	verifier credential.Verifier
	stores   StoreAccess
	cfg      Config
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
	newID    func() string

	flights singleflight.Group
	recent  *rotationCache
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithStoreAccess enables store binding at login for store-scoped roles.
func WithStoreAccess(s StoreAccess) Option {
	return func(m *Manager) { m.stores = s }
}

// WithMetrics sets the metric instruments. The default is telemetry.GetMetrics().
func WithMetrics(mt *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager returns a Manager.
func NewManager(sessions sessionrepo.Repository, tokens *security.TokenProvider, verifier credential.Verifier, cfg Config, opts ...Option) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		sessions: sessions,
		tokens:   tokens,
		verifier: verifier,
		cfg:      cfg,
		logger:   zerolog.Nop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = telemetry.GetMetrics()
	}
	m.recent = newRotationCache(cfg.ReuseGrace, m.now)
	return m
}

// Login verifies the credential, creates a session (evicting the user's oldest active
// sessions beyond the limit), and returns a fresh pair.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	id, err := m.verifier.Verify(ctx, req.Credential)
	if err != nil {
		telemetry.Inc(ctx, m.metrics.LoginTotal, attribute.String("result", "rejected"))
		return nil, err
	}
	if err := m.checkStoreBinding(ctx, id, req.StoreID); err != nil {
		telemetry.Inc(ctx, m.metrics.LoginTotal, attribute.String("result", "store_denied"))
		return nil, err
	}

	refresh, err := m.tokens.IssueRefresh()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	s := &sessiondomain.Session{
		ID:               m.newID(),
		UserID:           id.UserID,
		RefreshTokenHash: security.HashRefreshToken(refresh),
		Role:             id.Role,
		StoreID:          req.StoreID,
		ExpiresAt:        now.Add(m.cfg.RefreshTTL),
		IPAddress:        req.Device.IPAddress,
		UserAgent:        req.Device.UserAgent,
		CreatedAt:        now,
	}
	access, accessExp, err := m.tokens.IssueAccess(s.UserID, s.Role, s.StoreID, s.ID)
	if err != nil {
		return nil, err
	}
	evicted, err := m.sessions.Create(ctx, s, m.cfg.MaxSessionsPerUser)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if len(evicted) > 0 {
		telemetry.Add(ctx, m.metrics.SessionsEvictedTotal, int64(len(evicted)))
		m.logger.Info().Str("user_id", s.UserID).Strs("evicted_sessions", evicted).Msg("session limit reached; oldest sessions revoked")
	}
	telemetry.Inc(ctx, m.metrics.LoginTotal, attribute.String("result", "ok"))
	m.logger.Info().Str("user_id", s.UserID).Str("session_id", s.ID).Str("role", s.Role.String()).Str("store_id", s.StoreID).Msg("login")

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: s.ExpiresAt,
		SessionID:        s.ID,
		StoreID:          s.StoreID,
	}, nil
}

// checkStoreBinding allows platform actors to bind any store. Everyone else must rank
// at least Vendor and hold a read grant on the store.
func (m *Manager) checkStoreBinding(ctx context.Context, id *credential.Identity, storeID string) error {
	if storeID == "" || id.Role.IsPlatform() {
		return nil
	}
	if m.stores == nil || !id.Role.AtLeast(role.Vendor) {
		return apperr.Denied()
	}
	ok, err := m.stores.HasAccess(ctx, id.UserID, storeID, role.OpRead)
	if err != nil {
		return apperr.DeniedCause(err)
	}
	if !ok {
		return apperr.Denied()
	}
	return nil
}

// NeedsRefresh reports whether an access token expiring at accessExpiry is inside the
// grace window (or already expired) and should be refreshed before the next call.
// The window never exceeds half the access TTL, so short-lived tokens are not refreshed
// on every call.
func (m *Manager) NeedsRefresh(accessExpiry time.Time) bool {
	if accessExpiry.IsZero() {
		return true
	}
	return !m.now().Add(m.graceWindow()).Before(accessExpiry)
}

func (m *Manager) graceWindow() time.Duration {
	if half := m.tokens.AccessTTL() / 2; half > 0 && half < m.cfg.GraceWindow {
		return half
	}
	return m.cfg.GraceWindow
}

// EnsureFresh refreshes pair when NeedsRefresh says so. It returns the pair to use from
// now on and whether a refresh happened.
func (m *Manager) EnsureFresh(ctx context.Context, pair *TokenPair) (*TokenPair, bool, error) {
	if pair == nil {
		return nil, false, apperr.Authentication("invalid_refresh")
	}
	if !m.NeedsRefresh(pair.AccessExpiresAt) {
		return pair, false, nil
	}
	next, err := m.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// Logout revokes the targeted session. It never returns an authentication error: an unknown,
// expired, or already revoked target is success. Only a store failure is reported.
func (m *Manager) Logout(ctx context.Context, target LogoutTarget) error {
	sessionID := target.SessionID
	if sessionID == "" && target.RefreshToken != "" {
		s, err := m.sessions.FindByHash(ctx, security.HashRefreshToken(target.RefreshToken))
		if err != nil {
			return apperr.Persistence(err)
		}
		if s == nil {
			return nil
		}
		sessionID = s.ID
	}
	if sessionID == "" {
		return nil
	}
	if err := m.sessions.Revoke(ctx, sessionID, sessiondomain.ReasonLogout); err != nil {
		return apperr.Persistence(err)
	}
	telemetry.Inc(ctx, m.metrics.SessionsRevokedTotal, attribute.String("reason", string(sessiondomain.ReasonLogout)))
	m.logger.Info().Str("session_id", sessionID).Msg("logout")
	return nil
}

// RevokeSession revokes sessionID if it belongs to userID. A session owned by someone else
// is left alone and reported as success so ids cannot be probed.
func (m *Manager) RevokeSession(ctx context.Context, userID, sessionID string, reason sessiondomain.RevokeReason) error {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return apperr.Persistence(err)
	}
	if s == nil || s.UserID != userID {
		return nil
	}
	if err := m.sessions.Revoke(ctx, sessionID, reason); err != nil {
		return apperr.Persistence(err)
	}
	telemetry.Inc(ctx, m.metrics.SessionsRevokedTotal, attribute.String("reason", string(reason)))
	return nil
}

// RevokeAllForUser ends every active session of userID.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string, reason sessiondomain.RevokeReason) (int, error) {
	n, err := m.sessions.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	if n > 0 {
		telemetry.Add(ctx, m.metrics.SessionsRevokedTotal, int64(n), attribute.String("reason", string(reason)))
		m.logger.Info().Str("user_id", userID).Int("count", n).Str("reason", string(reason)).Msg("sessions revoked")
	}
	return n, nil
}

// ListSessions returns the active sessions of userID, newest first.
func (m *Manager) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	list, err := m.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return list, nil
}

// SessionActive reports whether sessionID exists and is neither revoked nor expired. The
// transport checks it on every authenticated call so revocation takes effect immediately.
func (m *Manager) SessionActive(ctx context.Context, sessionID string) (bool, error) {
	s, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return false, apperr.Persistence(err)
	}
	return s != nil && s.Active(m.now()), nil
}

// OnAnomaly is the security response to a burst of denied accesses: the offending session
// is revoked, or every session of the user when the session is unknown.
func (m *Manager) OnAnomaly(ctx context.Context, userID, sessionID string, denials int) {
	log := m.logger.Warn().Str("user_id", userID).Str("session_id", sessionID).Int("denials", denials)
	var err error
	if sessionID != "" {
		err = m.RevokeSession(ctx, userID, sessionID, sessiondomain.ReasonSecurity)
	} else {
		_, err = m.RevokeAllForUser(ctx, userID, sessiondomain.ReasonSecurity)
	}
	if err != nil {
		log.Err(err).Msg("anomaly response failed")
		return
	}
	log.Msg("repeated denials; session revoked")
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
