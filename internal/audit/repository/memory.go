package repository

import (
	"context"
	"slices"
	"sync"

	"storeguard/backend/internal/audit/domain"
)

// MemoryRepository keeps entries in insertion order.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []domain.Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, e *domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *MemoryRepository) ListByStore(_ context.Context, storeID string, limit, offset int32) ([]*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].StoreID == storeID {
			e := r.entries[i]
			out = append(out, &e)
		}
	}
	out = out[min(int(max(offset, 0)), len(out)):]
	if limit > 0 && len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListBySession(_ context.Context, sessionID string) ([]*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Entry
	for _, e := range r.entries {
		if e.SessionID == sessionID {
			c := e
			out = append(out, &c)
		}
	}
	slices.SortStableFunc(out, func(a, b *domain.Entry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// All returns a copy of every entry in insertion order.
func (r *MemoryRepository) All() []domain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}
