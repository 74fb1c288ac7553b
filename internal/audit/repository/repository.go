package repository

import (
	"context"

	"storeguard/backend/internal/audit/domain"
)

// Repository persists audit entries. Entries are never updated or deleted.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	// ListByStore returns entries for storeID, newest first.
	ListByStore(ctx context.Context, storeID string, limit, offset int32) ([]*domain.Entry, error)
	// ListBySession returns entries for sessionID in write order.
	ListBySession(ctx context.Context, sessionID string) ([]*domain.Entry, error)
}
