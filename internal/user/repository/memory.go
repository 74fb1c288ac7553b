package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"storeguard/backend/internal/db"
	"storeguard/backend/internal/user/domain"
)

// MemoryRepository is an in-process user repository for tests and local development.
type MemoryRepository struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	external map[[2]string]string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[string]*domain.User),
		external: make(map[[2]string]string),
	}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.users[id]), nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetByExternalIdentity(_ context.Context, issuer, subject string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.external[[2]string{issuer, subject}]
	if !ok {
		return nil, nil
	}
	return clone(r.users[id]), nil
}

func (r *MemoryRepository) Create(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return db.ErrUniqueViolation
	}
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return db.ErrUniqueViolation
		}
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	r.users[u.ID] = clone(u)
	return nil
}

func (r *MemoryRepository) LinkExternalIdentity(_ context.Context, id domain.ExternalIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{id.Issuer, id.Subject}
	if _, ok := r.external[key]; !ok {
		r.external[key] = id.UserID
	}
	return nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, id string, status domain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Status = status
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func clone(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
