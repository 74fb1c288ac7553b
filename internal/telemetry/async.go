package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	auditdomain "storeguard/backend/internal/audit/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after gRPC GracefulStop before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is not blocked.
// emitter and entry may be nil; EmitAsync then returns without starting a goroutine.
// The goroutine detaches from ctx cancellation so a finished request does not abort the emit.
func EmitAsync(ctx context.Context, emitter EventEmitter, entry *auditdomain.Entry, logger zerolog.Logger) {
	if emitter == nil || entry == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	go func() {
		emitCtx, cancel := context.WithTimeout(base, emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, entry); err != nil {
			logger.Warn().Err(err).Str("audit_id", entry.ID).Msg("audit mirror emit failed")
			Inc(emitCtx, GetMetrics().AuditSinkFailuresTotal)
		}
	}()
}
