package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"storeguard/backend/internal/session/domain"
)

// MemoryRepository is an in-process session repository with the same semantics as
// PostgresRepository. The mutex only guards map access; no I/O happens under it.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	hashes   map[string]string // every hash ever issued -> session id
	now      func() time.Time
}

// NewMemoryRepository returns an empty MemoryRepository. now may be nil.
func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		sessions: make(map[string]*domain.Session),
		hashes:   make(map[string]string),
		now:      now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, s *domain.Session, maxActive int) ([]string, error) {
	if maxActive < 1 {
		maxActive = 1
	}
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.hashes[s.RefreshTokenHash]; ok {
		return nil, ErrHashReused
	}
	active := r.activeForUserLocked(s.UserID, now)
	var evicted []string
	if over := len(active) - (maxActive - 1); over > 0 {
		for _, old := range active[:over] {
			revokeLocked(old, domain.ReasonEvicted, now)
			evicted = append(evicted, old.ID)
		}
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	r.sessions[s.ID] = clone(s)
	r.hashes[s.RefreshTokenHash] = s.ID
	return evicted, nil
}

func (r *MemoryRepository) FindActiveByHash(_ context.Context, hash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[r.hashes[hash]]
	if !ok || s.RefreshTokenHash != hash || !s.Active(r.now()) {
		return nil, nil
	}
	return clone(s), nil
}

func (r *MemoryRepository) FindByHash(_ context.Context, hash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.sessions[r.hashes[hash]]), nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.sessions[id]), nil
}

func (r *MemoryRepository) Rotate(_ context.Context, id, oldHash, newHash string, newExpiresAt time.Time) (*domain.Session, error) {
	now := r.now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.RefreshTokenHash != oldHash || !s.Active(now) {
		return nil, ErrRotateConflict
	}
	if _, taken := r.hashes[newHash]; taken {
		return nil, ErrHashReused
	}
	s.RefreshTokenHash = newHash
	s.ExpiresAt = newExpiresAt
	s.UpdatedAt = now
	r.hashes[newHash] = id
	return clone(s), nil
}

func (r *MemoryRepository) Revoke(_ context.Context, id string, reason domain.RevokeReason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		revokeLocked(s, reason, r.now().UTC())
	}
	return nil
}

func (r *MemoryRepository) RevokeAllForUser(_ context.Context, userID string, reason domain.RevokeReason) (int, error) {
	now := r.now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && revokeLocked(s, reason, now) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListActiveForUser(_ context.Context, userID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := r.activeForUserLocked(userID, r.now())
	out := make([]*domain.Session, len(active))
	for i, s := range active {
		out[i] = clone(s)
	}
	return out, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(before) || (s.IsRevoked && s.RevokedAt != nil && s.RevokedAt.Before(before)) {
			delete(r.sessions, id)
			n++
		}
	}
	for h, id := range r.hashes {
		if _, ok := r.sessions[id]; !ok {
			delete(r.hashes, h)
		}
	}
	return n, nil
}

// activeForUserLocked returns the user's active sessions oldest first.
func (r *MemoryRepository) activeForUserLocked(userID string, now time.Time) []*domain.Session {
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.Active(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func revokeLocked(s *domain.Session, reason domain.RevokeReason, now time.Time) bool {
	if s.IsRevoked {
		return false
	}
	at := now
	s.IsRevoked = true
	s.RevokedAt = &at
	s.RevokeReason = reason
	s.UpdatedAt = now
	return true
}

func clone(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
