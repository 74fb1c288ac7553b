// Package gate is the single decision point every tenant-scoped data operation passes
// through: it authorizes the caller for the store, pins the tenant predicate into the
// query or payload, delegates to the persistence engine, and audits the call.
package gate

import (
	"strings"

	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/platform/role"
	"storeguard/backend/internal/security"
)

// TenantContext is the explicit per-request actor passed to every gate call.
// StoreID is the store the request targets; it may differ from the store bound into
// the token for users who act across stores they own or administer.
type TenantContext struct {
	UserID    string
	Role      role.Role
	StoreID   string
	SessionID string
}

// FromClaims builds a TenantContext from verified access token claims. requestedStoreID,
// when set, is the store named by the request; otherwise the token's store applies.
// Whether the actor may use that store is decided later by the grant resolver.
func FromClaims(c *security.Claims, requestedStoreID string) (TenantContext, error) {
	if c == nil || c.UserID() == "" || c.ActorRole() == role.Unknown {
		return TenantContext{}, apperr.Authentication("invalid_token")
	}
	storeID := strings.TrimSpace(requestedStoreID)
	if storeID == "" {
		storeID = c.StoreID
	}
	return TenantContext{
		UserID:    c.UserID(),
		Role:      c.ActorRole(),
		StoreID:   storeID,
		SessionID: c.SessionID,
	}, nil
}
