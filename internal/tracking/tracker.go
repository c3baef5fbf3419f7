// Package tracking implements the per-(target, rotator-set) tracking state
// machine: WAITING -> AOS -> TRACKING -> LOS -> WAITING, ticking every two
// seconds and publishing 1 Hz pointing samples while TRACKING.
package tracking

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/groundstation/rotorctl/internal/ephemeris"
	"github.com/groundstation/rotorctl/internal/observability"
)

// Status mirrors the source's TrackerStatus enum.
type Status int

const (
	StatusDisabled Status = iota
	StatusWaiting
	StatusAOS
	StatusTracking
	StatusLOS
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusWaiting:
		return "waiting"
	case StatusAOS:
		return "aos"
	case StatusTracking:
		return "tracking"
	case StatusLOS:
		return "los"
	default:
		return "unknown"
	}
}

// DefaultPreAOSTime is the lead time before AOS used when the caller does
// not specify one.
const DefaultPreAOSTime = 120 * time.Second

const tickInterval = 2 * time.Second

// PositionSample is one published pointing update (spec.md S4.5).
type PositionSample struct {
	Target    string
	Rotators  []string
	AzDeg     float64
	ElDeg     float64
	RangeKM   float64
	RangeRate float64
	Timestamp time.Time
}

// Dispatch is the small interface a TargetTracker uses to talk back to its
// owning supervisor, replacing the source's back-reference to remove the
// cycle (spec.md S9 "Supervisor <-> tracker coupling").
type Dispatch interface {
	EmitEvent(kind string, fields map[string]any)
	PublishPointing(sample PositionSample)
	Logf(format string, args ...any)
}

// Tracker owns one target and the rotator set it drives. It runs its own
// driver goroutine, ticking every two seconds.
type Tracker struct {
	TargetName string
	HighAcc    bool
	PreAOS     time.Duration

	target   ephemeris.Target
	dispatch Dispatch

	mu       sync.Mutex
	rotators map[string]bool
	status   Status
	pass     ephemeris.Pass
	hasPass  bool

	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// New constructs a Tracker for target, serving the given rotator names.
// highAccuracy defaults (at the call site, per spec.md S9) to true iff the
// target is celestial. The tracker's clock is time.Now.
func New(target ephemeris.Target, rotators []string, preAOS time.Duration, highAccuracy bool, dispatch Dispatch) *Tracker {
	if preAOS <= 0 {
		preAOS = DefaultPreAOSTime
	}
	rs := make(map[string]bool, len(rotators))
	for _, r := range rotators {
		rs[r] = true
	}
	return &Tracker{
		TargetName: target.TargetName(),
		HighAcc:    highAccuracy,
		PreAOS:     preAOS,
		target:     target,
		dispatch:   dispatch,
		rotators:   rs,
		status:     StatusWaiting,
		now:        time.Now,
	}
}

// Status returns the tracker's current state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Rotators returns the current rotator names, sorted is not guaranteed.
func (t *Tracker) Rotators() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.rotators))
	for r := range t.rotators {
		out = append(out, r)
	}
	return out
}

// StatusMessage returns the per-tracker status snapshot used by
// orbit.rpc.status replies (spec.md S6, S9 "Tracker status ... enrichment").
func (t *Tracker) StatusMessage() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	rotators := make([]string, 0, len(t.rotators))
	for r := range t.rotators {
		rotators = append(rotators, r)
	}
	msg := map[string]any{
		"target_name":   t.TargetName,
		"status":        t.status.String(),
		"rotators":      rotators,
		"high_accuracy": t.HighAcc,
	}
	if t.hasPass {
		msg["next_pass"] = map[string]any{
			"aos": t.pass.AOS,
			"los": t.pass.LOS,
		}
	}
	return msg
}

// Start launches the tracker's driver goroutine. The context passed in
// bounds the tracker's overall lifetime; Stop/removing all rotators cancels
// it earlier.
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go t.run(ctx, done)
}

func (t *Tracker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Run the first tick immediately: the pre-AOS window may already be
	// open at add_target time (spec.md S5, S8 S5).
	t.tick(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick runs one state-machine evaluation. Transient ephemeris/bus failures
// are logged and the tick is skipped; the next tick retries (spec.md S7).
func (t *Tracker) tick(ctx context.Context) {
	t.mu.Lock()
	if t.status == StatusDisabled {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	tickStart := time.Now()
	defer func() {
		observability.RecordTrackerTick(t.TargetName, time.Since(tickStart))
	}()

	now := t.now().UTC()

	pass, ok, err := t.target.GetNextPass(ctx)
	if err != nil {
		t.dispatch.Logf("[Tracker %s] next pass lookup failed: %v", t.TargetName, err)
		return
	}
	if !ok {
		t.mu.Lock()
		t.status = StatusDisabled
		t.mu.Unlock()
		t.dispatch.Logf("[Tracker %s] CRITICAL: no next pass available, disabling", t.TargetName)
		return
	}

	t.mu.Lock()
	t.pass = pass
	t.hasPass = true
	status := t.status
	t.mu.Unlock()

	switch status {
	case StatusWaiting:
		if !now.Before(pass.AOS) {
			t.transition(StatusTracking, "aos", t.passFields(pass))
		} else if !now.Before(pass.AOS.Add(-t.PreAOS)) {
			t.transition(StatusAOS, "preaos", t.passFields(pass))
		}
	case StatusAOS:
		if !now.Before(pass.AOS) {
			t.transition(StatusTracking, "aos", t.passFields(pass))
		}
	case StatusTracking:
		if !now.Before(pass.LOS) {
			t.transition(StatusLOS, "los", t.passFields(pass))
			return
		}
		t.publishPointing(ctx, now)
	case StatusLOS:
		boundCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := t.target.CalculatePasses(boundCtx)
		cancel()
		if err != nil {
			t.dispatch.Logf("[Tracker %s] recompute passes failed: %v", t.TargetName, err)
		}
		t.mu.Lock()
		t.status = StatusWaiting
		t.mu.Unlock()
	}
}

func (t *Tracker) transition(to Status, event string, fields map[string]any) {
	t.mu.Lock()
	t.status = to
	t.mu.Unlock()
	t.dispatch.EmitEvent(event, fields)
}

// passFields builds the event payload for a pass-driven transition. Every
// event the tick path emits must carry "rotators" alongside the pass fields,
// matching spec.md S6's {target, rotators, ...} contract (and Stop's
// hand-added "rotators" for its own los emission).
func (t *Tracker) passFields(p ephemeris.Pass) map[string]any {
	f := map[string]any{
		"aos":      p.AOS,
		"los":      p.LOS,
		"rotators": t.Rotators(),
	}
	if p.HasMaxElev {
		f["max_elevation"] = p.MaxElevDeg
	}
	return f
}

// publishPointing predicts one second ahead, applies refraction correction
// when HighAcc is set, clamps/normalizes for broadcast, and publishes the
// sample (spec.md S4.5).
func (t *Tracker) publishPointing(ctx context.Context, now time.Time) {
	predictAt := now.Add(1 * time.Second)
	pos, err := t.target.PosAt(ctx, predictAt, t.HighAcc)
	if err != nil {
		t.dispatch.Logf("[Tracker %s] position lookup failed: %v", t.TargetName, err)
		return
	}

	el := pos.ElevationDeg
	if el < 0 {
		el = 0
	}
	az := pos.AzimuthDeg
	if az > 180 {
		az -= 360
	}

	sample := PositionSample{
		Target:    t.TargetName,
		Rotators:  t.Rotators(),
		AzDeg:     round2(az),
		ElDeg:     round2(el),
		RangeKM:   round2(pos.RangeKM),
		RangeRate: round2(pos.RangeRateKMS),
		Timestamp: predictAt,
	}
	t.dispatch.PublishPointing(sample)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Stop removes removedRotators from the tracker's rotator set. If any were
// actually present, a los event is emitted synchronously for that subset
// before returning. If the rotator set becomes empty, the driver goroutine
// is cancelled and Stop blocks until it has exited.
func (t *Tracker) Stop(removedRotators []string) {
	t.mu.Lock()
	var actuallyRemoved []string
	for _, r := range removedRotators {
		if t.rotators[r] {
			delete(t.rotators, r)
			actuallyRemoved = append(actuallyRemoved, r)
		}
	}
	empty := len(t.rotators) == 0
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	if len(actuallyRemoved) > 0 {
		t.dispatch.EmitEvent("los", map[string]any{
			"target":   t.TargetName,
			"rotators": actuallyRemoved,
		})
	}

	if empty {
		if cancel != nil {
			cancel()
		}
		if done != nil {
			<-done
		}
		t.mu.Lock()
		t.target = nil
		t.mu.Unlock()
	}
}

// Empty reports whether the tracker's rotator set is empty (it should be
// removed from the supervisor's collection).
func (t *Tracker) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rotators) == 0
}
