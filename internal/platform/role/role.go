// Package role defines the ordered actor roles and the operation kinds the
// access gate authorizes.
package role

import (
	"errors"
	"strings"
)

// Role is an ordered actor role. A higher value never has fewer privileges
// than a lower one; compare with AtLeast, not with string equality.
type Role int

const (
	Unknown Role = iota
	Customer
	Vendor
	StoreAdmin
	StoreOwner
	PlatformAdmin
)

var ErrUnknownRole = errors.New("unknown role")

var names = map[Role]string{
	Customer:      "customer",
	Vendor:        "vendor",
	StoreAdmin:    "store_admin",
	StoreOwner:    "store_owner",
	PlatformAdmin: "platform_admin",
}

func (r Role) String() string {
	if n, ok := names[r]; ok {
		return n
	}
	return "unknown"
}

// Parse returns the Role named by s (case-insensitive).
func Parse(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, n := range names {
		if n == s {
			return r, nil
		}
	}
	return Unknown, ErrUnknownRole
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r != Unknown && r >= min
}

// IsPlatform reports whether r acts at platform level, outside any single tenant.
func (r Role) IsPlatform() bool {
	return r == PlatformAdmin
}

// Operation is the kind of data access being authorized.
type Operation int

const (
	OpRead Operation = iota + 1
	OpWrite
)

var ErrUnknownOperation = errors.New("unknown operation")

func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "unknown"
	}
}

// ParseOperation returns the Operation named by s.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return OpRead, nil
	case "write":
		return OpWrite, nil
	default:
		return 0, ErrUnknownOperation
	}
}
