// Package domain holds store assignments, the facts access grants are decided from.
package domain

import "errors"

// Kind is how a user is attached to a store.
type Kind string

const (
	KindOwner  Kind = "owner"
	KindAdmin  Kind = "admin"
	KindVendor Kind = "vendor"
)

var ErrUnknownKind = errors.New("unknown assignment kind")

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindOwner, KindAdmin, KindVendor:
		return k, nil
	}
	return "", ErrUnknownKind
}

// Permissions are the scoped rights of a vendor assignment. Owners and admins ignore them.
type Permissions struct {
	Read  bool
	Write bool
}

// Assignment binds a user to a store.
type Assignment struct {
	UserID      string
	StoreID     string
	Kind        Kind
	Permissions Permissions
}
