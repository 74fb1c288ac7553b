package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "storeguard/backend"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Gate metrics
	GateDecisionsTotal   metric.Int64Counter
	GateDenialsTotal     metric.Int64Counter
	GateAnomaliesTotal   metric.Int64Counter
	GrantResolveDuration metric.Float64Histogram
	RowsFilteredTotal    metric.Int64Counter

	// Session metrics
	LoginTotal            metric.Int64Counter
	RefreshTotal          metric.Int64Counter
	RefreshCoalescedTotal metric.Int64Counter
	ReplayDetectedTotal   metric.Int64Counter
	SessionsEvictedTotal  metric.Int64Counter
	SessionsRevokedTotal  metric.Int64Counter
	SessionsReapedTotal   metric.Int64Counter

	// Audit metrics
	AuditSinkFailuresTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Call after the global MeterProvider is set, or instruments bind to the no-op provider.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.GateDecisionsTotal, _ = meter.Int64Counter(
		"storeguard.gate.decisions.total",
		metric.WithDescription("Access gate decisions by outcome and operation"),
		metric.WithUnit("{decision}"),
	)

	m.GateDenialsTotal, _ = meter.Int64Counter(
		"storeguard.gate.denials.total",
		metric.WithDescription("Access gate denials"),
		metric.WithUnit("{denial}"),
	)

	m.GateAnomaliesTotal, _ = meter.Int64Counter(
		"storeguard.gate.anomalies.total",
		metric.WithDescription("Denial bursts handed to the security responder"),
		metric.WithUnit("{anomaly}"),
	)

	m.GrantResolveDuration, _ = meter.Float64Histogram(
		"storeguard.gate.grant_resolve.duration",
		metric.WithDescription("Duration of access grant resolution"),
		metric.WithUnit("ms"),
	)

	m.RowsFilteredTotal, _ = meter.Int64Counter(
		"storeguard.gate.rows_filtered.total",
		metric.WithDescription("Rows dropped by the read post-check for carrying another tenant id"),
		metric.WithUnit("{row}"),
	)

	m.LoginTotal, _ = meter.Int64Counter(
		"storeguard.sessions.login.total",
		metric.WithDescription("Login attempts by result"),
		metric.WithUnit("{login}"),
	)

	m.RefreshTotal, _ = meter.Int64Counter(
		"storeguard.sessions.refresh.total",
		metric.WithDescription("Refresh rotations by result"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshCoalescedTotal, _ = meter.Int64Counter(
		"storeguard.sessions.refresh.coalesced.total",
		metric.WithDescription("Refresh calls served by another caller's in-flight or just-finished rotation"),
		metric.WithUnit("{refresh}"),
	)

	m.ReplayDetectedTotal, _ = meter.Int64Counter(
		"storeguard.sessions.replay_detected.total",
		metric.WithDescription("Presentations of an already-rotated refresh token"),
		metric.WithUnit("{replay}"),
	)

	m.SessionsEvictedTotal, _ = meter.Int64Counter(
		"storeguard.sessions.evicted.total",
		metric.WithDescription("Sessions revoked to honor the per-user active session limit"),
		metric.WithUnit("{session}"),
	)

	m.SessionsRevokedTotal, _ = meter.Int64Counter(
		"storeguard.sessions.revoked.total",
		metric.WithDescription("Sessions revoked by reason"),
		metric.WithUnit("{session}"),
	)

	m.SessionsReapedTotal, _ = meter.Int64Counter(
		"storeguard.sessions.reaped.total",
		metric.WithDescription("Expired or revoked session rows physically deleted"),
		metric.WithUnit("{session}"),
	)

	m.AuditSinkFailuresTotal, _ = meter.Int64Counter(
		"storeguard.audit.sink_failures.total",
		metric.WithDescription("Audit entries that could not be written"),
		metric.WithUnit("{entry}"),
	)

	return m
}

// Inc adds one to c with the given attributes. A nil counter is ignored so
// zero-value Metrics in tests need no setup.
func Inc(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Add adds n to c. A nil counter is ignored.
func Add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil || n == 0 {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
