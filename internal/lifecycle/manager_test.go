package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeguard/backend/internal/credential"
	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/platform/role"
	"storeguard/backend/internal/security"
	sessiondomain "storeguard/backend/internal/session/domain"
	sessionrepo "storeguard/backend/internal/session/repository"
	"storeguard/backend/internal/telemetry"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeVerifier accepts password "pw" for the known emails.
type fakeVerifier map[string]credential.Identity

func (f fakeVerifier) Verify(_ context.Context, c credential.Credential) (*credential.Identity, error) {
	id, ok := f[c.Email]
	if !ok || c.Password != "pw" {
		return nil, apperr.Authentication("invalid_credentials")
	}
	return &id, nil
}

var users = fakeVerifier{
	"owner@shop.test":  {UserID: "u-owner", Role: role.StoreOwner},
	"vendor@shop.test": {UserID: "u-vendor", Role: role.Vendor},
	"root@shop.test":   {UserID: "u-root", Role: role.PlatformAdmin},
	"buyer@shop.test":  {UserID: "u-buyer", Role: role.Customer},
}

type storeGrants map[[2]string]bool

func (g storeGrants) HasAccess(_ context.Context, userID, storeID string, _ role.Operation) (bool, error) {
	return g[[2]string{userID, storeID}], nil
}

type harness struct {
	clock    *clock
	sessions *sessionrepo.MemoryRepository
	tokens   *security.TokenProvider
	mgr      *Manager
}

func newHarness(t *testing.T, accessTTL time.Duration, cfg Config, wrap func(sessionrepo.Repository) sessionrepo.Repository) *harness {
	t.Helper()
	c := newClock()
	repo := sessionrepo.NewMemoryRepository(c.Now)
	tokens, err := security.NewTestTokenProvider(accessTTL, security.WithClock(c.Now))
	require.NoError(t, err)
	var store sessionrepo.Repository = repo
	if wrap != nil {
		store = wrap(repo)
	}
	mgr := NewManager(store, tokens, users, cfg,
		WithClock(c.Now),
		WithMetrics(&telemetry.Metrics{}),
		WithStoreAccess(storeGrants{{"u-owner", "s1"}: true, {"u-buyer", "s1"}: true}),
	)
	return &harness{clock: c, sessions: repo, tokens: tokens, mgr: mgr}
}

func (h *harness) login(t *testing.T, email string) *TokenPair {
	t.Helper()
	p, err := h.mgr.Login(context.Background(), LoginRequest{
		Credential: credential.Credential{Email: email, Password: "pw"},
		Device:     sessiondomain.DeviceInfo{IPAddress: "203.0.113.7", UserAgent: "test"},
	})
	require.NoError(t, err)
	return p
}

func TestLogin_IssuesVerifiablePair(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	p := h.login(t, "owner@shop.test")

	claims, err := h.tokens.VerifyAccess(ctx, p.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-owner", claims.UserID())
	assert.Equal(t, p.SessionID, claims.SessionID)
	assert.Equal(t, role.StoreOwner, claims.ActorRole())
	assert.Equal(t, h.clock.Now().Add(time.Hour), p.AccessExpiresAt)
	assert.Equal(t, h.clock.Now().Add(168*time.Hour), p.RefreshExpiresAt)

	s, err := h.sessions.GetByID(ctx, p.SessionID)
	require.NoError(t, err)
	assert.NotEqual(t, p.RefreshToken, s.RefreshTokenHash, "plaintext refresh token must not be stored")
	assert.Equal(t, security.HashRefreshToken(p.RefreshToken), s.RefreshTokenHash)
	assert.Equal(t, "203.0.113.7", s.IPAddress)
}

func TestLogin_BadCredential(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	_, err := h.mgr.Login(context.Background(), LoginRequest{Credential: credential.Credential{Email: "owner@shop.test", Password: "x"}})
	require.ErrorIs(t, err, apperr.ErrAuthentication)
	list, _ := h.sessions.ListActiveForUser(context.Background(), "u-owner")
	assert.Empty(t, list)
}

func TestLogin_StoreBinding(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	login := func(email, store string) (*TokenPair, error) {
		return h.mgr.Login(ctx, LoginRequest{Credential: credential.Credential{Email: email, Password: "pw"}, StoreID: store})
	}

	p, err := login("owner@shop.test", "s1")
	require.NoError(t, err)
	claims, err := h.tokens.VerifyAccess(ctx, p.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.StoreID)

	_, err = login("owner@shop.test", "s2")
	require.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = login("vendor@shop.test", "s1")
	require.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = login("buyer@shop.test", "s1")
	require.ErrorIs(t, err, apperr.ErrAccessDenied, "customers never bind a store, even with a grant")
	_, err = login("buyer@shop.test", "")
	require.NoError(t, err)

	p, err = login("root@shop.test", "s2")
	require.NoError(t, err, "platform actors may bind any store")
	assert.Equal(t, "s2", p.StoreID)
}

func TestLogin_EvictsOldestBeyondLimit(t *testing.T) {
	h := newHarness(t, time.Hour, Config{MaxSessionsPerUser: 3}, nil)
	ctx := context.Background()
	var pairs []*TokenPair
	for i := 0; i < 4; i++ {
		pairs = append(pairs, h.login(t, "owner@shop.test"))
		h.clock.Advance(time.Second)
	}

	active, err := h.mgr.ListSessions(ctx, "u-owner")
	require.NoError(t, err)
	assert.Len(t, active, 3)

	first, _ := h.sessions.GetByID(ctx, pairs[0].SessionID)
	assert.True(t, first.IsRevoked)
	assert.Equal(t, sessiondomain.ReasonEvicted, first.RevokeReason)

	_, err = h.mgr.Refresh(ctx, pairs[0].RefreshToken)
	require.ErrorIs(t, err, apperr.ErrAuthentication)
}

func TestRefresh_RotatesAndDetectsReplay(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	p1 := h.login(t, "owner@shop.test")
	h.clock.Advance(time.Minute)

	p2, err := h.mgr.Refresh(ctx, p1.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, p1.SessionID, p2.SessionID, "rotation keeps the logical session")
	assert.NotEqual(t, p1.RefreshToken, p2.RefreshToken)
	assert.NotEqual(t, p1.AccessToken, p2.AccessToken)
	assert.True(t, p2.RefreshExpiresAt.After(p1.RefreshExpiresAt), "rotation extends the session")

	_, err = h.mgr.Refresh(ctx, p1.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrConcurrency, "replay of a rotated token is detected")

	s, _ := h.sessions.GetByID(ctx, p1.SessionID)
	assert.True(t, s.IsRevoked)
	assert.Equal(t, sessiondomain.ReasonReplay, s.RevokeReason)

	_, err = h.mgr.Refresh(ctx, p2.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrAuthentication, "the session is gone for the legitimate holder too")
}

func TestRefresh_AfterLogout(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	p := h.login(t, "owner@shop.test")

	require.NoError(t, h.mgr.Logout(ctx, LogoutTarget{RefreshToken: p.RefreshToken}))

	_, err := h.mgr.Refresh(ctx, p.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrAuthentication)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "invalid_refresh", ae.Code)
}

func TestRefresh_InvalidInputs(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	for _, tok := range []string{"", "never-issued"} {
		_, err := h.mgr.Refresh(ctx, tok)
		require.ErrorIs(t, err, apperr.ErrAuthentication, "token %q", tok)
	}

	p := h.login(t, "owner@shop.test")
	h.clock.Advance(169 * time.Hour)
	_, err := h.mgr.Refresh(ctx, p.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrAuthentication, "expired session")
}

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	p := h.login(t, "owner@shop.test")

	require.NoError(t, h.mgr.Logout(ctx, LogoutTarget{SessionID: p.SessionID}))
	require.NoError(t, h.mgr.Logout(ctx, LogoutTarget{SessionID: p.SessionID}))
	require.NoError(t, h.mgr.Logout(ctx, LogoutTarget{RefreshToken: p.RefreshToken}))
	require.NoError(t, h.mgr.Logout(ctx, LogoutTarget{RefreshToken: "unknown"}))
	require.NoError(t, h.mgr.Logout(ctx, LogoutTarget{SessionID: "missing"}))
	require.NoError(t, h.mgr.Logout(ctx, LogoutTarget{}))

	s, _ := h.sessions.GetByID(ctx, p.SessionID)
	assert.Equal(t, sessiondomain.ReasonLogout, s.RevokeReason)
}

func TestLogout_ByRotatedToken(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	p1 := h.login(t, "owner@shop.test")
	p2, err := h.mgr.Refresh(ctx, p1.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, h.mgr.Logout(ctx, LogoutTarget{RefreshToken: p1.RefreshToken}))
	_, err = h.mgr.Refresh(ctx, p2.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrAuthentication)
}

// failingRepo fails every lookup.
type failingRepo struct{ sessionrepo.Repository }

func (failingRepo) FindActiveByHash(context.Context, string) (*sessiondomain.Session, error) {
	return nil, errors.New("connection reset")
}

func (failingRepo) FindByHash(context.Context, string) (*sessiondomain.Session, error) {
	return nil, errors.New("connection reset")
}

func TestStoreFailuresArePersistenceErrors(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, func(r sessionrepo.Repository) sessionrepo.Repository { return failingRepo{r} })
	ctx := context.Background()

	_, err := h.mgr.Refresh(ctx, "anything")
	require.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Equal(t, "temporarily unavailable", apperr.SafeMessage(err))

	err = h.mgr.Logout(ctx, LogoutTarget{RefreshToken: "anything"})
	require.ErrorIs(t, err, apperr.ErrPersistence)
	require.NotErrorIs(t, err, apperr.ErrAuthentication)
}

func TestNeedsRefresh(t *testing.T) {
	h := newHarness(t, time.Hour, Config{GraceWindow: 5 * time.Minute}, nil)
	now := h.clock.Now()
	assert.False(t, h.mgr.NeedsRefresh(now.Add(10*time.Minute)))
	assert.True(t, h.mgr.NeedsRefresh(now.Add(5*time.Minute)))
	assert.True(t, h.mgr.NeedsRefresh(now.Add(4*time.Minute)))
	assert.True(t, h.mgr.NeedsRefresh(now.Add(-time.Minute)))
	assert.True(t, h.mgr.NeedsRefresh(time.Time{}))
}

func TestEnsureFresh(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	p := h.login(t, "owner@shop.test")

	same, refreshed, err := h.mgr.EnsureFresh(ctx, p)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Same(t, p, same)

	h.clock.Advance(56 * time.Minute)
	next, refreshed, err := h.mgr.EnsureFresh(ctx, p)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, h.clock.Now().Add(time.Hour), next.AccessExpiresAt)
}

func TestRevokeSession_OnlyOwnSessions(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	p := h.login(t, "owner@shop.test")

	require.NoError(t, h.mgr.RevokeSession(ctx, "u-vendor", p.SessionID, sessiondomain.ReasonAdmin))
	s, _ := h.sessions.GetByID(ctx, p.SessionID)
	assert.False(t, s.IsRevoked)

	require.NoError(t, h.mgr.RevokeSession(ctx, "u-owner", p.SessionID, sessiondomain.ReasonAdmin))
	s, _ = h.sessions.GetByID(ctx, p.SessionID)
	assert.True(t, s.IsRevoked)
}

func TestOnAnomaly(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	a := h.login(t, "owner@shop.test")
	b := h.login(t, "owner@shop.test")

	h.mgr.OnAnomaly(ctx, "u-owner", a.SessionID, 5)
	sa, _ := h.sessions.GetByID(ctx, a.SessionID)
	sb, _ := h.sessions.GetByID(ctx, b.SessionID)
	assert.Equal(t, sessiondomain.ReasonSecurity, sa.RevokeReason)
	assert.False(t, sb.IsRevoked)

	h.mgr.OnAnomaly(ctx, "u-owner", "", 5)
	sb, _ = h.sessions.GetByID(ctx, b.SessionID)
	assert.True(t, sb.IsRevoked)
}

func TestRevokeAllForUser(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	h.login(t, "owner@shop.test")
	h.login(t, "owner@shop.test")
	h.login(t, "vendor@shop.test")

	n, err := h.mgr.RevokeAllForUser(ctx, "u-owner", sessiondomain.ReasonAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	left, _ := h.mgr.ListSessions(ctx, "u-vendor")
	assert.Len(t, left, 1)
}

func TestSessionActive(t *testing.T) {
	h := newHarness(t, time.Hour, Config{}, nil)
	ctx := context.Background()
	p := h.login(t, "owner@shop.test")

	ok, err := h.mgr.SessionActive(ctx, p.SessionID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, h.mgr.Logout(ctx, LogoutTarget{SessionID: p.SessionID}))
	ok, err = h.mgr.SessionActive(ctx, p.SessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.mgr.SessionActive(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
