package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	auditdomain "storeguard/backend/internal/audit/domain"
)

type recordCapture struct {
	recs []otellog.Record
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.recs = append(r.recs, rec)
}

func attrsOf(rec otellog.Record) map[string]string {
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestNewAuditEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewAuditEmitter(nil)
	if em == nil {
		t.Fatal("NewAuditEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), &auditdomain.Entry{Operation: "create"}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestNewAuditEmitter_RealProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewAuditEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
	if err := em.Emit(context.Background(), &auditdomain.Entry{Operation: "count"}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestEmit_MapsEntry(t *testing.T) {
	cap := &recordCapture{}
	em := newAuditEmitter(cap)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	e := &auditdomain.Entry{
		ID:           "a1",
		Operation:    "findMany",
		Access:       "read",
		ResourceKind: "orders",
		UserID:       "u1",
		Role:         "vendor",
		StoreID:      "s1",
		SessionID:    "sess1",
		Metadata:     `{"rows":2}`,
		Outcome:      auditdomain.OutcomeAllowed,
		CreatedAt:    at,
	}
	if err := em.Emit(context.Background(), e); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(cap.recs) != 1 {
		t.Fatalf("records = %d, want 1", len(cap.recs))
	}
	rec := cap.recs[0]
	if !rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), at)
	}
	if got := rec.Body().AsString(); got != `{"rows":2}` {
		t.Errorf("body = %q", got)
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v, want INFO", rec.Severity())
	}
	if rec.EventName() != "storeguard.audit.findMany" {
		t.Errorf("event name = %q", rec.EventName())
	}
	want := map[string]string{
		"audit.id": "a1", "audit.operation": "findMany", "audit.access": "read",
		"audit.outcome": "allowed", "resource.kind": "orders", "user.id": "u1",
		"user.role": "vendor", "store.id": "s1", "session.id": "sess1",
	}
	attrs := attrsOf(rec)
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
	if _, ok := attrs["record.id"]; ok {
		t.Error("empty record id should not be an attribute")
	}
}

func TestEmit_DeniedIsWarn(t *testing.T) {
	cap := &recordCapture{}
	em := newAuditEmitter(cap)
	if err := em.Emit(context.Background(), &auditdomain.Entry{Operation: "create", Outcome: auditdomain.OutcomeDenied, Metadata: "{}"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := cap.recs[0]
	if rec.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want WARN", rec.Severity())
	}
	if !rec.Body().Empty() {
		t.Error("empty metadata should leave the body unset")
	}
}

func TestEmit_ZeroTimestamp_UsesClock(t *testing.T) {
	cap := &recordCapture{}
	em := newAuditEmitter(cap)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	em.now = func() time.Time { return fixed }
	if err := em.Emit(context.Background(), &auditdomain.Entry{Operation: "delete"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got := cap.recs[0].Timestamp(); !got.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", got, fixed)
	}
}
