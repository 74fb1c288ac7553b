package telemetry

import (
	"context"

	auditdomain "storeguard/backend/internal/audit/domain"
)

// EventEmitter mirrors audit entries to an external sink (e.g. OTel Logs). Best-effort;
// callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, entry *auditdomain.Entry) error
}
