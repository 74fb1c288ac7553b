// Package domain holds the audit entry written for every access gate call.
package domain

import "time"

// Outcome is the gate decision recorded in an entry.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// Entry is an append-only audit record. Metadata is redacted JSON; it never carries
// credentials or raw payload secrets.
type Entry struct {
	ID           string
	Operation    string // gate verb, e.g. findMany, batch
	Access       string // read or write
	ResourceKind string // table name
	RecordID     string
	UserID       string
	Role         string
	StoreID      string
	SessionID    string
	Metadata     string
	Outcome      Outcome
	CreatedAt    time.Time
}
