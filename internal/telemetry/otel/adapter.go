package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "storeguard/backend/internal/audit/domain"
	"storeguard/backend/internal/telemetry"
)

const scopeName = "storeguard.audit"

// recordSink is the part of otellog.Logger the emitter needs.
type recordSink interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewAuditEmitter returns an EventEmitter that mirrors audit entries as OTel log records
// via provider. A nil provider yields a no-op emitter.
func NewAuditEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return newAuditEmitter(provider.Logger(scopeName))
}

func newAuditEmitter(sink recordSink) *auditEmitter {
	return &auditEmitter{sink: sink, now: time.Now}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *auditdomain.Entry) error { return nil }

type auditEmitter struct {
	sink recordSink
	now  func() time.Time
}

// Emit converts e to a log record: metadata becomes the body, identity and decision
// fields become attributes. Denied entries are emitted at WARN.
func (a *auditEmitter) Emit(ctx context.Context, e *auditdomain.Entry) error {
	if e == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := e.CreatedAt
	if ts.IsZero() {
		ts = a.now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(a.now().UTC())
	rec.SetEventName("storeguard.audit." + e.Operation)

	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetSeverityText("INFO")
	if e.Outcome == auditdomain.OutcomeDenied {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	}
	if e.Metadata != "" && e.Metadata != "{}" {
		rec.SetBody(otellog.StringValue(e.Metadata))
	}

	for _, kv := range []struct{ k, v string }{
		{"audit.id", e.ID},
		{"audit.operation", e.Operation},
		{"audit.access", e.Access},
		{"audit.outcome", string(e.Outcome)},
		{"resource.kind", e.ResourceKind},
		{"record.id", e.RecordID},
		{"user.id", e.UserID},
		{"user.role", e.Role},
		{"store.id", e.StoreID},
		{"session.id", e.SessionID},
	} {
		if kv.v != "" {
			rec.AddAttributes(otellog.String(kv.k, kv.v))
		}
	}
	a.sink.Emit(ctx, rec)
	return nil
}
