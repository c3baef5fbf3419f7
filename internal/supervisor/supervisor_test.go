package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/groundstation/rotorctl/internal/ephemeris"
)

type fakeBus struct {
	mu        sync.Mutex
	published []string
}

func (b *fakeBus) Publish(subject string, payload map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, subject)
	return nil
}

func (b *fakeBus) count(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.published {
		if s == subject {
			n++
		}
	}
	return n
}

func newTestProvider() *ephemeris.SyntheticProvider {
	provider := ephemeris.NewSyntheticProvider()
	now := time.Now()
	provider.Targets["sat-1"] = &ephemeris.SyntheticTarget{
		Name: "sat-1", AOS: now.Add(time.Hour), LOS: now.Add(2 * time.Hour), MaxElev: 45,
	}
	return provider
}

func TestAddTargetRejectsEmptyFields(t *testing.T) {
	o := New(newTestProvider(), &fakeBus{}, true)
	defer o.Close()

	if err := o.AddTarget(context.Background(), AddTargetRequest{Rotators: []string{"r1"}}); err != ErrEmptyTargetName {
		t.Errorf("empty name: got %v, want ErrEmptyTargetName", err)
	}
	if err := o.AddTarget(context.Background(), AddTargetRequest{TargetName: "sat-1"}); err != ErrEmptyRotators {
		t.Errorf("empty rotators: got %v, want ErrEmptyRotators", err)
	}
}

func TestAddTargetUnknownTarget(t *testing.T) {
	o := New(newTestProvider(), &fakeBus{}, true)
	defer o.Close()

	err := o.AddTarget(context.Background(), AddTargetRequest{TargetName: "no-such-sat", Rotators: []string{"r1"}})
	if err != ErrTargetNotFound {
		t.Errorf("got %v, want ErrTargetNotFound", err)
	}
}

func TestAddTargetDuplicateRejected(t *testing.T) {
	bus := &fakeBus{}
	o := New(newTestProvider(), bus, true)
	defer o.Close()

	req := AddTargetRequest{TargetName: "sat-1", Rotators: []string{"r1"}}
	if err := o.AddTarget(context.Background(), req); err != nil {
		t.Fatalf("first AddTarget: %v", err)
	}
	if err := o.AddTarget(context.Background(), req); err != ErrTargetExists {
		t.Errorf("second AddTarget: got %v, want ErrTargetExists", err)
	}
}

// Invariant 7: remove_target on all rotators removes the tracker from the
// supervisor's collection.
func TestRemoveTargetDropsTracker(t *testing.T) {
	bus := &fakeBus{}
	o := New(newTestProvider(), bus, true)
	defer o.Close()

	req := AddTargetRequest{TargetName: "sat-1", Rotators: []string{"r1", "r2"}}
	if err := o.AddTarget(context.Background(), req); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}

	status := o.Status()
	trackers := status["trackers"].(map[string]any)
	if _, ok := trackers["sat-1"]; !ok {
		t.Fatalf("expected sat-1 tracker present after add")
	}

	if err := o.RemoveTarget("sat-1", []string{"r1", "r2"}); err != nil {
		t.Fatalf("RemoveTarget: %v", err)
	}

	status = o.Status()
	trackers = status["trackers"].(map[string]any)
	if _, ok := trackers["sat-1"]; ok {
		t.Errorf("expected sat-1 tracker removed after remove_target on all rotators")
	}
}

func TestHandleRPCStatusAndUnknownOp(t *testing.T) {
	o := New(newTestProvider(), &fakeBus{}, true)
	defer o.Close()

	resp := o.HandleRPC(context.Background(), "status", AddTargetRequest{}, time.Now())
	if !resp.Success || resp.CorrelID == "" {
		t.Errorf("status RPC: success=%v correlID=%q", resp.Success, resp.CorrelID)
	}

	resp = o.HandleRPC(context.Background(), "bogus_op", AddTargetRequest{}, time.Now())
	if resp.Success || resp.Error == "" {
		t.Errorf("unknown op RPC should fail with an error message, got %+v", resp)
	}
}

func TestHandleSchedulerEventFiltersTrackerKind(t *testing.T) {
	o := New(newTestProvider(), &fakeBus{}, true)
	defer o.Close()

	req := AddTargetRequest{TargetName: "sat-1", Rotators: []string{"r1"}}
	if err := o.HandleSchedulerEvent(context.Background(), "other-kind", "task.start", req); err != nil {
		t.Errorf("non-orbit tracker kind should be ignored, got %v", err)
	}
	status := o.Status()
	trackers := status["trackers"].(map[string]any)
	if len(trackers) != 0 {
		t.Errorf("expected no tracker created for non-orbit scheduler event")
	}

	if err := o.HandleSchedulerEvent(context.Background(), "orbit", "task.start", req); err != nil {
		t.Fatalf("orbit task.start: %v", err)
	}
	status = o.Status()
	trackers = status["trackers"].(map[string]any)
	if len(trackers) != 1 {
		t.Errorf("expected tracker created for orbit scheduler event")
	}
}
