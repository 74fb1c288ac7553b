package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/security"
	sessiondomain "storeguard/backend/internal/session/domain"
	sessionrepo "storeguard/backend/internal/session/repository"
	"storeguard/backend/internal/telemetry"
)

func errInvalidRefresh() error { return apperr.Authentication("invalid_refresh") }

func errRefreshTimeout() error { return apperr.AuthenticationCause("refresh_timeout", apperr.ErrTimeout) }

// Refresh rotates the session behind refreshToken and returns a new pair.
//
// Concurrent calls presenting the same token share one rotation and its result, including
// a timeout. The rotation runs detached from any single caller's cancellation and is bounded
// by RefreshTimeout. Presenting a token that was already rotated away is a replay: the
// session is revoked and a Concurrency error returned.
//
// A caller whose ctx ends first gets refresh_timeout, but the rotation may still commit
// and invalidate the presented token. Its outcome is unknown to that caller; presenting
// the same token again is only safe within ReuseGrace.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, errInvalidRefresh()
	}
	hash := security.HashRefreshToken(refreshToken)

	if p, ok := m.recent.get(hash); ok {
		telemetry.Inc(ctx, m.metrics.RefreshCoalescedTotal, attribute.String("via", "grace"))
		return p, nil
	}

	ch := m.flights.DoChan(hash, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RefreshTimeout)
		defer cancel()
		return m.rotate(rctx, hash)
	})
	timer := time.NewTimer(m.cfg.RefreshTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Shared {
			telemetry.Inc(ctx, m.metrics.RefreshCoalescedTotal, attribute.String("via", "inflight"))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		p := *res.Val.(*TokenPair)
		return &p, nil
	case <-timer.C:
		return nil, errRefreshTimeout()
	case <-ctx.Done():
		return nil, errRefreshTimeout()
	}
}

// rotate is the single in-flight rotation for hash.
func (m *Manager) rotate(ctx context.Context, hash string) (*TokenPair, error) {
	s, err := m.sessions.FindActiveByHash(ctx, hash)
	if err != nil {
		return nil, m.refreshFailure(ctx, err)
	}
	if s == nil {
		return nil, m.rejectUnknown(ctx, hash)
	}

	refresh, err := m.tokens.IssueRefresh()
	if err != nil {
		return nil, err
	}
	newHash := security.HashRefreshToken(refresh)
	newExp := m.now().UTC().Add(m.cfg.RefreshTTL)
	access, accessExp, err := m.tokens.IssueAccess(s.UserID, s.Role, s.StoreID, s.ID)
	if err != nil {
		return nil, err
	}

	updated, err := m.sessions.Rotate(ctx, s.ID, hash, newHash, newExp)
	if errors.Is(err, sessionrepo.ErrRotateConflict) {
		// Someone else consumed this token between lookup and CAS.
		m.revokeOnConflict(ctx, s.ID, sessiondomain.ReasonConflict)
		telemetry.Inc(ctx, m.metrics.RefreshTotal, attribute.String("result", "conflict"))
		return nil, apperr.Concurrency("refresh_conflict")
	}
	if err != nil {
		return nil, m.refreshFailure(ctx, err)
	}

	p := &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: updated.ExpiresAt,
		SessionID:        updated.ID,
		StoreID:          updated.StoreID,
	}
	m.recent.put(hash, p)
	telemetry.Inc(ctx, m.metrics.RefreshTotal, attribute.String("result", "ok"))
	m.logger.Debug().Str("session_id", s.ID).Str("user_id", s.UserID).Msg("session rotated")
	return p, nil
}

// rejectUnknown classifies a hash with no active session: a retired hash is a replay,
// anything else is simply invalid.
func (m *Manager) rejectUnknown(ctx context.Context, hash string) error {
	owner, err := m.sessions.FindByHash(ctx, hash)
	if err != nil {
		return m.refreshFailure(ctx, err)
	}
	if owner == nil || security.HashEqual(owner.RefreshTokenHash, hash) {
		telemetry.Inc(ctx, m.metrics.RefreshTotal, attribute.String("result", "invalid"))
		return errInvalidRefresh()
	}
	telemetry.Inc(ctx, m.metrics.ReplayDetectedTotal)
	telemetry.Inc(ctx, m.metrics.RefreshTotal, attribute.String("result", "replay"))
	m.logger.Warn().Str("session_id", owner.ID).Str("user_id", owner.UserID).Msg("rotated refresh token presented again; revoking session")
	m.revokeOnConflict(ctx, owner.ID, sessiondomain.ReasonReplay)
	return apperr.Concurrency("refresh_replayed")
}

func (m *Manager) revokeOnConflict(ctx context.Context, sessionID string, reason sessiondomain.RevokeReason) {
	if err := m.sessions.Revoke(ctx, sessionID, reason); err != nil {
		m.logger.Error().Err(err).Str("session_id", sessionID).Str("reason", string(reason)).Msg("revoke after refresh conflict failed")
		return
	}
	telemetry.Inc(ctx, m.metrics.SessionsRevokedTotal, attribute.String("reason", string(reason)))
}

func (m *Manager) refreshFailure(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		telemetry.Inc(ctx, m.metrics.RefreshTotal, attribute.String("result", "timeout"))
		return errRefreshTimeout()
	}
	telemetry.Inc(ctx, m.metrics.RefreshTotal, attribute.String("result", "error"))
	return apperr.Persistence(err)
}
