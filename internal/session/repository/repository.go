package repository

import (
	"context"
	"errors"
	"time"

	"storeguard/backend/internal/session/domain"
)

var (
	// ErrRotateConflict is returned by Rotate when the session's current hash no longer
	// matches the presented one, or the session is no longer active.
	ErrRotateConflict = errors.New("session: rotate conflict")
	// ErrHashReused is returned when a refresh token hash was already issued to any session.
	ErrHashReused = errors.New("session: refresh token hash already issued")
)

// Repository defines persistence for sessions. Lookups return (nil, nil) when nothing matches.
// Every method is safe for concurrent use; none holds a lock across I/O in the caller.
type Repository interface {
	// Create inserts s. If the user already has maxActive or more active sessions the oldest
	// are revoked (reason evicted) in the same transaction so that at most maxActive remain.
	// Returns the ids of evicted sessions.
	Create(ctx context.Context, s *domain.Session, maxActive int) (evicted []string, err error)
	// FindActiveByHash returns the non-revoked, non-expired session whose current hash is hash.
	FindActiveByHash(ctx context.Context, hash string) (*domain.Session, error)
	// FindByHash returns the session that was ever issued hash, whether current or rotated
	// away, in any state.
	FindByHash(ctx context.Context, hash string) (*domain.Session, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// Rotate replaces the session's hash and expiry only if its current hash equals oldHash
	// and it is still active. Otherwise returns ErrRotateConflict. oldHash is retired and
	// stays reserved.
	Rotate(ctx context.Context, id, oldHash, newHash string, newExpiresAt time.Time) (*domain.Session, error)
	// Revoke is idempotent; revoking a revoked or missing session is not an error.
	Revoke(ctx context.Context, id string, reason domain.RevokeReason) error
	// RevokeAllForUser revokes every active session of userID and returns how many were revoked.
	RevokeAllForUser(ctx context.Context, userID string, reason domain.RevokeReason) (int, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// DeleteExpired physically removes sessions that expired, or were revoked, before before.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
