package repository

import (
	"context"
	"sync"

	"storeguard/backend/internal/grant/domain"
)

// MemoryRepository is an in-process assignment repository for tests and local development.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[[2]string]domain.Assignment
}

// NewMemoryRepository returns a repository seeded with the given assignments.
func NewMemoryRepository(seed ...domain.Assignment) *MemoryRepository {
	r := &MemoryRepository{m: make(map[[2]string]domain.Assignment)}
	for _, a := range seed {
		r.m[[2]string{a.UserID, a.StoreID}] = a
	}
	return r
}

func (r *MemoryRepository) GetAssignment(_ context.Context, userID, storeID string) (*domain.Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.m[[2]string{userID, storeID}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, a *domain.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[[2]string{a.UserID, a.StoreID}] = *a
	return nil
}

func (r *MemoryRepository) Remove(_ context.Context, userID, storeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, [2]string{userID, storeID})
	return nil
}
