package repository

import (
	"context"

	"storeguard/backend/internal/grant/domain"
)

// Repository reads store assignments. GetAssignment returns (nil, nil) when the user has no
// relation to the store.
type Repository interface {
	GetAssignment(ctx context.Context, userID, storeID string) (*domain.Assignment, error)
	Upsert(ctx context.Context, a *domain.Assignment) error
	Remove(ctx context.Context, userID, storeID string) error
}
