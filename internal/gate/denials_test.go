package gate

import (
	"testing"
	"time"
)

func TestDenialTracker_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := newDenialTracker(2, time.Minute, func() time.Time { return now })

	if _, crossed := d.record("u", "s"); crossed {
		t.Fatal("first denial should not cross")
	}
	if n, crossed := d.record("u", "s"); !crossed || n != 2 {
		t.Fatalf("second denial = %d, %v; want 2, true", n, crossed)
	}
	if _, crossed := d.record("u", "s"); crossed {
		t.Error("threshold fires at most once per window")
	}
	if got := d.count("u", "other"); got != 0 {
		t.Errorf("other session count = %d, want 0", got)
	}

	now = now.Add(61 * time.Second)
	if got := d.count("u", "s"); got != 0 {
		t.Errorf("count after window = %d, want 0", got)
	}
	d.record("u", "s")
	if _, crossed := d.record("u", "s"); !crossed {
		t.Error("new window should fire again")
	}
}
