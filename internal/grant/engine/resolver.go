// Package engine decides access grants: may a user perform an operation on a store.
package engine

import (
	"context"

	"storeguard/backend/internal/grant/domain"
	"storeguard/backend/internal/platform/role"
)

// Resolver answers HasAccess for (user, store, operation). An error means "could not decide";
// callers must treat it as a denial.
type Resolver interface {
	HasAccess(ctx context.Context, userID, storeID string, op role.Operation) (bool, error)
}

// AssignmentSource is the slice of the assignment repository the resolvers need.
type AssignmentSource interface {
	GetAssignment(ctx context.Context, userID, storeID string) (*domain.Assignment, error)
}
