package engine

import (
	"context"

	"storeguard/backend/internal/grant/domain"
	"storeguard/backend/internal/platform/role"
)

// rule reports whether an assignment permits one operation.
type rule func(a *domain.Assignment) bool

func always(*domain.Assignment) bool { return true }

var matrix = map[domain.Kind]map[role.Operation]rule{
	domain.KindOwner: {
		role.OpRead:  always,
		role.OpWrite: always,
	},
	domain.KindAdmin: {
		role.OpRead:  always,
		role.OpWrite: always,
	},
	domain.KindVendor: {
		role.OpRead:  func(a *domain.Assignment) bool { return a.Permissions.Read || a.Permissions.Write },
		role.OpWrite: func(a *domain.Assignment) bool { return a.Permissions.Write },
	},
}

// TableResolver decides from a fixed permission matrix keyed by assignment kind and operation.
type TableResolver struct {
	assignments AssignmentSource
}

// NewTableResolver returns a TableResolver reading assignments from src.
func NewTableResolver(src AssignmentSource) *TableResolver {
	return &TableResolver{assignments: src}
}

func (r *TableResolver) HasAccess(ctx context.Context, userID, storeID string, op role.Operation) (bool, error) {
	if userID == "" || storeID == "" {
		return false, nil
	}
	a, err := r.assignments.GetAssignment(ctx, userID, storeID)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	check, ok := matrix[a.Kind][op]
	if !ok {
		return false, nil
	}
	return check(a), nil
}
