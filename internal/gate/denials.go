package gate

import (
	"context"
	"sync"
	"time"
)

// SecurityResponder is told when one user/session accumulates too many denials.
type SecurityResponder interface {
	OnAnomaly(ctx context.Context, userID, sessionID string, denials int)
}

// maxTrackedActors bounds the tracker; idle actors are dropped first.
const maxTrackedActors = 50000

// denialTracker counts denials per (user, session) in a sliding window and reports when
// the threshold is crossed, at most once per window.
type denialTracker struct {
	threshold int
	window    time.Duration
	now       func() time.Time

	mu     sync.Mutex
	actors map[actorKey]*actorDenials
}

type actorKey struct{ userID, sessionID string }

type actorDenials struct {
	at      []time.Time
	firedAt time.Time
}

func newDenialTracker(threshold int, window time.Duration, now func() time.Time) *denialTracker {
	return &denialTracker{threshold: threshold, window: window, now: now, actors: make(map[actorKey]*actorDenials)}
}

// record adds one denial and returns the in-window count and whether this denial crossed the threshold.
func (d *denialTracker) record(userID, sessionID string) (int, bool) {
	now := d.now()
	cutoff := now.Add(-d.window)
	k := actorKey{userID, sessionID}

	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.actors[k]
	if !ok {
		if len(d.actors) >= maxTrackedActors {
			d.pruneLocked(cutoff)
		}
		a = &actorDenials{}
		d.actors[k] = a
	}
	i := 0
	for i < len(a.at) && !a.at[i].After(cutoff) {
		i++
	}
	a.at = append(a.at[i:], now)
	n := len(a.at)
	if n < d.threshold || (!a.firedAt.IsZero() && a.firedAt.After(cutoff)) {
		return n, false
	}
	a.firedAt = now
	return n, true
}

func (d *denialTracker) count(userID, sessionID string) int {
	cutoff := d.now().Add(-d.window)
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.actors[actorKey{userID, sessionID}]
	if !ok {
		return 0
	}
	n := 0
	for _, t := range a.at {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func (d *denialTracker) pruneLocked(cutoff time.Time) {
	for k, a := range d.actors {
		if len(a.at) == 0 || !a.at[len(a.at)-1].After(cutoff) {
			delete(d.actors, k)
		}
	}
}
