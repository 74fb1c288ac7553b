package gate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"storeguard/backend/internal/audit"
	auditdomain "storeguard/backend/internal/audit/domain"
	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/platform/role"
	"storeguard/backend/internal/store"
	"storeguard/backend/internal/telemetry"
)

// Resolver is the external access grant decision.
type Resolver interface {
	HasAccess(ctx context.Context, userID, storeID string, op role.Operation) (bool, error)
}

// AuditSink accepts one entry per gate call. An error means the entry was lost; the
// gate logs it and carries on.
type AuditSink interface {
	Record(ctx context.Context, e *auditdomain.Entry) error
}

// Gate authorizes, scopes, executes, and audits tenant-scoped data operations.
type Gate struct {
	engine       store.Engine
	grants       Resolver
	sink         AuditSink
	responder    SecurityResponder
	denials      *denialTracker
	grantTimeout time.Duration
	logger       zerolog.Logger
	metrics      *telemetry.Metrics
	now          func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithResponder sets who is told about denial bursts.
func WithResponder(r SecurityResponder) Option {
	return func(g *Gate) { g.responder = r }
}

// WithDenialPolicy sets the anomaly threshold: threshold denials within window. Defaults 5 in 10m.
func WithDenialPolicy(threshold int, window time.Duration) Option {
	return func(g *Gate) {
		if threshold > 0 && window > 0 {
			g.denials = newDenialTracker(threshold, window, g.now)
		}
	}
}

// WithGrantTimeout bounds one grant resolution. Default 2s.
func WithGrantTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.grantTimeout = d
		}
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithMetrics sets the metric instruments. The default is telemetry.GetMetrics().
func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithClock overrides the time source; apply it before WithDenialPolicy.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
		g.denials.now = now
	}
}

// New returns a Gate. sink must not be nil.
func New(engine store.Engine, grants Resolver, sink AuditSink, opts ...Option) *Gate {
	g := &Gate{
		engine:       engine,
		grants:       grants,
		sink:         sink,
		grantTimeout: 2 * time.Second,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
	g.denials = newDenialTracker(5, 10*time.Minute, g.now)
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = telemetry.GetMetrics()
	}
	return g
}

// Authorize decides whether tc may perform op on storeID. nil means allowed; any denial is
// apperr.Denied. Platform actors skip grant resolution. Resolver failure or timeout denies.
func (g *Gate) Authorize(ctx context.Context, tc TenantContext, storeID string, op role.Operation) (err error) {
	c := g.begin(tc, "authorize", op, "", storeID)
	defer func() { c.finish(ctx, err) }()
	_, err = g.authorize(ctx, tc, storeID, op)
	return err
}

// authorize returns the tenant scope for the call: storeID, or "" for a platform-wide actor.
func (g *Gate) authorize(ctx context.Context, tc TenantContext, storeID string, op role.Operation) (string, error) {
	if tc.UserID == "" || tc.Role == role.Unknown {
		return "", apperr.Denied()
	}
	if op != role.OpRead && op != role.OpWrite {
		return "", apperr.Denied()
	}
	if tc.Role.IsPlatform() {
		return storeID, nil
	}
	if storeID == "" {
		return "", apperr.Denied()
	}

	ok, err := g.resolve(ctx, tc.UserID, storeID, op)
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", tc.UserID).Str("store_id", storeID).Msg("grant resolution failed; denying")
		return "", apperr.DeniedCause(err)
	}
	if !ok {
		return "", apperr.Denied()
	}
	return storeID, nil
}

// resolve calls the grant resolver under grantTimeout, returning when the deadline
// passes even if the resolver ignores its context.
func (g *Gate) resolve(ctx context.Context, userID, storeID string, op role.Operation) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.grantTimeout)
	defer cancel()
	start := g.now()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := g.grants.HasAccess(ctx, userID, storeID, op)
		done <- result{ok, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = result{false, errors.Join(apperr.ErrTimeout, ctx.Err())}
	}
	if h := g.metrics.GrantResolveDuration; h != nil {
		h.Record(ctx, float64(g.now().Sub(start).Milliseconds()), metric.WithAttributes(attribute.String("operation", op.String())))
	}
	return r.ok, r.err
}

// call is one audited gate invocation.
type call struct {
	g     *Gate
	tc    TenantContext
	entry *auditdomain.Entry
	meta  map[string]any
}

func (g *Gate) begin(tc TenantContext, operation string, op role.Operation, resource, storeID string) *call {
	return &call{
		g:  g,
		tc: tc,
		entry: &auditdomain.Entry{
			Operation:    operation,
			Access:       op.String(),
			ResourceKind: resource,
			UserID:       tc.UserID,
			Role:         tc.Role.String(),
			StoreID:      storeID,
			SessionID:    tc.SessionID,
		},
		meta: make(map[string]any),
	}
}

// finish writes the single audit entry for the call and updates denial accounting.
func (c *call) finish(ctx context.Context, err error) {
	g := c.g
	e := c.entry
	e.Outcome = auditdomain.OutcomeAllowed
	if err != nil {
		c.meta["error"] = apperr.KindOf(err).String()
		if code := errorCode(err); code != "" {
			c.meta["reason"] = code
		}
	}
	denied := errors.Is(err, apperr.ErrAccessDenied) || errors.Is(err, apperr.ErrValidation)
	if denied {
		e.Outcome = auditdomain.OutcomeDenied
	}
	e.Metadata = audit.Redact(c.meta)

	telemetry.Inc(ctx, g.metrics.GateDecisionsTotal, attribute.String("outcome", string(e.Outcome)), attribute.String("operation", e.Operation))
	if rerr := g.sink.Record(ctx, e); rerr != nil {
		telemetry.Inc(ctx, g.metrics.AuditSinkFailuresTotal)
		g.logger.Warn().Err(rerr).Str("operation", e.Operation).Str("outcome", string(e.Outcome)).Msg("audit sink unavailable; continuing degraded")
	}

	if denied && countsAsDenial(err) {
		c.recordDenial(ctx)
	}
}

func (c *call) recordDenial(ctx context.Context) {
	g := c.g
	telemetry.Inc(ctx, g.metrics.GateDenialsTotal, attribute.String("operation", c.entry.Operation))
	n, crossed := g.denials.record(c.tc.UserID, c.tc.SessionID)
	if !crossed || g.responder == nil {
		return
	}
	telemetry.Inc(ctx, g.metrics.GateAnomaliesTotal)
	g.logger.Warn().Str("user_id", c.tc.UserID).Str("session_id", c.tc.SessionID).Int("denials", n).Msg("denial threshold crossed")
	g.responder.OnAnomaly(context.WithoutCancel(ctx), c.tc.UserID, c.tc.SessionID, n)
}

// Denials returns the in-window denial count for a user/session.
func (g *Gate) Denials(userID, sessionID string) int {
	return g.denials.count(userID, sessionID)
}

// countsAsDenial is true for access denials and cross-tenant writes; plain malformed
// input is audited as denied but not treated as hostile.
func countsAsDenial(err error) bool {
	if errors.Is(err, apperr.ErrAccessDenied) {
		return true
	}
	return errorCode(err) == "tenant_mismatch"
}

func errorCode(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// engineError classifies an engine failure: schema misuse is the caller's fault, anything
// else is a persistence failure.
func engineError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrUnknownColumn) {
		return apperr.Validation("unknown_field", "unknown field")
	}
	if errors.Is(err, store.ErrEmptyPayload) {
		return apperr.Validation("empty_payload", "nothing to write")
	}
	return apperr.Persistence(err)
}
