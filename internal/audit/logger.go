package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storeguard/backend/internal/audit/domain"
	auditrepo "storeguard/backend/internal/audit/repository"
	"storeguard/backend/internal/telemetry"
)

// tick is the smallest timestamp step Postgres keeps (timestamptz has microsecond precision).
const tick = time.Microsecond

// maxTrackedSessions bounds the per-session clock table; older sessions are dropped first.
const maxTrackedSessions = 10000

// Logger records gate decisions. Each entry is persisted, written as a structured log
// line, and optionally mirrored to an EventEmitter. Timestamps are strictly increasing
// per session so entries of one session sort in write order.
type Logger struct {
	repo    auditrepo.Repository
	log     zerolog.Logger
	emitter telemetry.EventEmitter
	now     func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithEmitter mirrors every recorded entry to e, asynchronously.
func WithEmitter(e telemetry.EventEmitter) LoggerOption {
	return func(l *Logger) { l.emitter = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LoggerOption {
	return func(l *Logger) { l.now = now }
}

// NewLogger returns a Logger persisting to repo. repo may be nil to only log.
func NewLogger(repo auditrepo.Repository, log zerolog.Logger, opts ...LoggerOption) *Logger {
	l := &Logger{repo: repo, log: log, now: time.Now, last: make(map[string]time.Time)}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record fills ID and CreatedAt and writes e. The returned error only reports that the
// entry could not be persisted; callers must not fail the audited operation on it.
func (l *Logger) Record(ctx context.Context, e *domain.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = l.stamp(e.SessionID)
	if e.Metadata == "" {
		e.Metadata = "{}"
	}

	ev := l.log.Info()
	if e.Outcome == domain.OutcomeDenied {
		ev = l.log.Warn()
	}
	ev.Str("audit_id", e.ID).
		Str("operation", e.Operation).
		Str("access", e.Access).
		Str("resource", e.ResourceKind).
		Str("record_id", e.RecordID).
		Str("user_id", e.UserID).
		Str("role", e.Role).
		Str("store_id", e.StoreID).
		Str("session_id", e.SessionID).
		RawJSON("metadata", []byte(e.Metadata)).
		Str("outcome", string(e.Outcome)).
		Time("at", e.CreatedAt).
		Msg("audit")

	if l.emitter != nil {
		mirror := *e
		telemetry.EmitAsync(ctx, l.emitter, &mirror, l.log)
	}

	if l.repo == nil {
		return nil
	}
	return l.repo.Create(ctx, e)
}

// stamp returns now, or one tick after the session's previous entry when the clock
// did not advance.
func (l *Logger) stamp(sessionID string) time.Time {
	now := l.now().UTC().Truncate(tick)
	if sessionID == "" {
		return now
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.last[sessionID]; ok && !now.After(prev) {
		now = prev.Add(tick)
	}
	if len(l.last) >= maxTrackedSessions {
		l.pruneLocked(now)
	}
	l.last[sessionID] = now
	return now
}

func (l *Logger) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	for id, t := range l.last {
		if t.Before(cutoff) {
			delete(l.last, id)
		}
	}
	if len(l.last) < maxTrackedSessions {
		return
	}
	for id := range l.last {
		delete(l.last, id)
		if len(l.last) < maxTrackedSessions/2 {
			return
		}
	}
}
