package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/groundstation/rotorctl/internal/ephemeris"
)

type fakeDispatch struct {
	events []string
	points int
	logged []string
}

func (f *fakeDispatch) EmitEvent(kind string, fields map[string]any) {
	f.events = append(f.events, kind)
}

func (f *fakeDispatch) PublishPointing(sample PositionSample) {
	f.points++
}

func (f *fakeDispatch) Logf(format string, args ...any) {
	f.logged = append(f.logged, format)
}

// Invariant 6 / S5: state-machine monotonicity WAITING -> AOS -> TRACKING ->
// LOS -> WAITING across one manually-driven pass, with no backwards
// transition before LOS->WAITING.
func TestTrackerLifecycle(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	aos := base.Add(30 * time.Second)
	los := base.Add(90 * time.Second)
	target := &ephemeris.SyntheticTarget{
		Name: "TESTSAT", AOS: aos, LOS: los, MaxElev: 45, StartAz: 0, EndAz: 90,
	}

	disp := &fakeDispatch{}
	// preaos_time = 60s means the preaos window is already open at base
	// (aos - preaos = base - 30s), matching S5.
	tr := New(target, []string{"rotor-1"}, 60*time.Second, false, disp)

	clock := base
	tr.now = func() time.Time { return clock }

	ctx := context.Background()

	tr.tick(ctx) // immediate tick, preaos window already open
	if got := tr.Status(); got != StatusAOS {
		t.Fatalf("after first tick: status = %v, want AOS", got)
	}

	clock = aos.Add(time.Second)
	tr.tick(ctx)
	if got := tr.Status(); got != StatusTracking {
		t.Fatalf("at AOS: status = %v, want TRACKING", got)
	}

	// Advance through the pass in 2s steps, publishing pointing samples.
	for clock.Before(los) {
		clock = clock.Add(tickInterval)
		tr.tick(ctx)
		if tr.Status() == StatusLOS {
			break
		}
	}
	if got := tr.Status(); got != StatusLOS {
		t.Fatalf("after pass: status = %v, want LOS", got)
	}
	if disp.points == 0 {
		t.Errorf("expected at least one pointing publish during TRACKING")
	}

	clock = clock.Add(tickInterval)
	tr.tick(ctx)
	if got := tr.Status(); got != StatusWaiting {
		t.Fatalf("after LOS tick: status = %v, want WAITING", got)
	}

	wantSequence := []string{"preaos", "aos", "los"}
	if len(disp.events) != len(wantSequence) {
		t.Fatalf("events = %v, want %v", disp.events, wantSequence)
	}
	for i, e := range wantSequence {
		if disp.events[i] != e {
			t.Errorf("event[%d] = %q, want %q", i, disp.events[i], e)
		}
	}
}

// Invariant 7: Stop on all rotators cancels the driver goroutine and empties
// the tracker.
func TestTrackerStopTerminatesDriver(t *testing.T) {
	base := time.Now()
	target := &ephemeris.SyntheticTarget{
		Name: "TESTSAT", AOS: base.Add(time.Hour), LOS: base.Add(2 * time.Hour), MaxElev: 45,
	}
	disp := &fakeDispatch{}
	tr := New(target, []string{"rotor-1", "rotor-2"}, time.Minute, false, disp)
	tr.Start(context.Background())

	tr.Stop([]string{"rotor-1"})
	if tr.Empty() {
		t.Fatalf("tracker should not be empty after removing only one of two rotors")
	}

	tr.Stop([]string{"rotor-2"})
	if !tr.Empty() {
		t.Fatalf("tracker should be empty after removing all rotors")
	}

	select {
	case <-tr.done:
	case <-time.After(time.Second):
		t.Fatal("driver goroutine did not terminate after removing all rotors")
	}

	if len(disp.events) != 2 {
		t.Fatalf("expected 2 los events (one per Stop call), got %v", disp.events)
	}
}
