// Package supervisor implements the OrbitTracker supervisor: it holds the
// set of active per-target trackers and routes scheduler/RPC bus events.
// add_target and remove_target run on the caller's goroutine; the tracker
// collection is guarded by a mutex, and a duplicate target name is rejected
// again under that mutex when the new tracker is inserted.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/groundstation/rotorctl/internal/ephemeris"
	"github.com/groundstation/rotorctl/internal/observability"
	"github.com/groundstation/rotorctl/internal/tracking"
)

// Errors returned by AddTarget/RemoveTarget (spec.md S7 "Configuration
// error").
var (
	ErrEmptyTargetName = errors.New("supervisor: target name must not be empty")
	ErrEmptyRotators   = errors.New("supervisor: rotators must not be empty")
	ErrTargetExists    = errors.New("supervisor: tracker already exists for target")
	ErrNoPasses        = errors.New("supervisor: target has no available passes")
	ErrTargetNotFound  = errors.New("supervisor: target not found")
	ErrUnknownOp       = errors.New("supervisor: unknown RPC operation")
)

// Bus is the minimal publish surface the supervisor needs from the message
// bus (internal/bus implements this against NATS).
type Bus interface {
	Publish(subject string, payload map[string]any) error
}

// OrbitTracker is the long-lived supervisor owning the set of active
// TargetTrackers (spec.md S4.4).
type OrbitTracker struct {
	provider ephemeris.Provider
	bus      Bus

	mu            sync.Mutex
	trackers      map[string]*tracking.Tracker
	schedulerOn   bool
	startedAt     time.Time
	defaultPreAOS time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs an OrbitTracker. schedulerEnabled gates whether inbound
// scheduler.task.start events are honored (spec.md S4.4).
func New(provider ephemeris.Provider, bus Bus, schedulerEnabled bool) *OrbitTracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &OrbitTracker{
		provider:      provider,
		bus:           bus,
		trackers:      make(map[string]*tracking.Tracker),
		schedulerOn:   schedulerEnabled,
		defaultPreAOS: tracking.DefaultPreAOSTime,
		startedAt:     time.Now(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Close cancels every active tracker's driver goroutine. Intended for
// process shutdown.
func (o *OrbitTracker) Close() {
	o.cancel()
}

// AddTargetRequest carries the scheduler.task.start / RPC add_target
// fields (spec.md S6).
type AddTargetRequest struct {
	TargetName string
	Rotators   []string
	PreAOSTime time.Duration
}

// AddTarget resolves target via the ephemeris provider and, if it has an
// available pass, creates and starts a TargetTracker for it (spec.md S4.4).
func (o *OrbitTracker) AddTarget(ctx context.Context, req AddTargetRequest) error {
	if req.TargetName == "" {
		log.Printf("[Supervisor] add_target rejected: empty target name")
		return ErrEmptyTargetName
	}
	if len(req.Rotators) == 0 {
		log.Printf("[Supervisor] add_target rejected: no rotators for %s", req.TargetName)
		return ErrEmptyRotators
	}

	o.mu.Lock()
	_, exists := o.trackers[req.TargetName]
	o.mu.Unlock()
	if exists {
		log.Printf("[Supervisor] add_target rejected: tracker already exists for %s", req.TargetName)
		return ErrTargetExists
	}

	target, ok, err := ephemeris.Resolve(ctx, o.provider, req.TargetName)
	if err != nil {
		return fmt.Errorf("supervisor: resolve %s: %w", req.TargetName, err)
	}
	if !ok {
		log.Printf("[Supervisor] add_target: target %s not found", req.TargetName)
		return ErrTargetNotFound
	}

	pass, hasPass, err := target.GetNextPass(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: get_next_pass %s: %w", req.TargetName, err)
	}
	if !hasPass {
		log.Printf("[Supervisor] add_target: no passes available for %s", req.TargetName)
		return ErrNoPasses
	}

	observability.RecordEventEmitted("next_pass")
	if err := o.bus.Publish("event.next_pass", map[string]any{
		"target":   req.TargetName,
		"rotators": req.Rotators,
		"aos":      pass.AOS,
		"los":      pass.LOS,
	}); err != nil {
		log.Printf("[Supervisor] failed to publish next_pass for %s: %v", req.TargetName, err)
	}

	preAOS := req.PreAOSTime
	if preAOS <= 0 {
		preAOS = o.defaultPreAOS
	}
	highAccuracy := target.Celestial()

	dispatch := &busDispatch{bus: o.bus, targetName: req.TargetName}
	tracker := tracking.New(target, req.Rotators, preAOS, highAccuracy, dispatch)

	o.mu.Lock()
	if _, dup := o.trackers[req.TargetName]; dup {
		o.mu.Unlock()
		log.Printf("[Supervisor] add_target rejected: tracker already exists for %s", req.TargetName)
		return ErrTargetExists
	}
	o.trackers[req.TargetName] = tracker
	count := len(o.trackers)
	o.mu.Unlock()
	observability.SetActiveTrackers(count)

	tracker.Start(o.ctx)
	log.Printf("[Supervisor] started tracker for %s on rotators %v", req.TargetName, req.Rotators)
	return nil
}

// RemoveTarget stops, for targetName, every tracker whose rotator set
// intersects rotators; trackers whose rotator set becomes empty are dropped
// from the supervisor's collection (spec.md S4.4).
func (o *OrbitTracker) RemoveTarget(targetName string, rotators []string) error {
	o.mu.Lock()
	tracker, ok := o.trackers[targetName]
	o.mu.Unlock()
	if !ok {
		return nil
	}

	tracker.Stop(rotators)

	if tracker.Empty() {
		o.mu.Lock()
		delete(o.trackers, targetName)
		count := len(o.trackers)
		o.mu.Unlock()
		observability.SetActiveTrackers(count)
		log.Printf("[Supervisor] tracker for %s removed", targetName)
	}
	return nil
}

// Status returns the per-tracker status snapshot used by orbit.rpc.status
// (spec.md S6, S9).
func (o *OrbitTracker) Status() map[string]any {
	o.mu.Lock()
	snapshot := make(map[string]*tracking.Tracker, len(o.trackers))
	for k, v := range o.trackers {
		snapshot[k] = v
	}
	o.mu.Unlock()

	trackersOut := make(map[string]any, len(snapshot))
	for name, tr := range snapshot {
		trackersOut[name] = tr.StatusMessage()
	}
	return map[string]any{
		"trackers":     trackersOut,
		"uptime_sec":   time.Since(o.startedAt).Seconds(),
		"scheduler_on": o.schedulerOn,
	}
}

// GetTargetPosition returns a point prediction for targetName at t, resolved
// through the ephemeris provider (no tracker is needed), or
// ErrTargetNotFound if the provider does not know targetName.
func (o *OrbitTracker) GetTargetPosition(ctx context.Context, targetName string, at time.Time) (ephemeris.Position, error) {
	target, ok, err := ephemeris.Resolve(ctx, o.provider, targetName)
	if err != nil {
		return ephemeris.Position{}, fmt.Errorf("supervisor: resolve %s: %w", targetName, err)
	}
	if !ok {
		return ephemeris.Position{}, ErrTargetNotFound
	}
	return target.PosAt(ctx, at, target.Celestial())
}

// HandleSchedulerEvent dispatches a scheduler.task.start/task.end event,
// filtering on tracker=="orbit" and scheduler_on, per spec.md S4.4.
func (o *OrbitTracker) HandleSchedulerEvent(ctx context.Context, trackerKind, op string, req AddTargetRequest) error {
	if trackerKind != "orbit" {
		return nil
	}
	switch op {
	case "task.start":
		o.mu.Lock()
		enabled := o.schedulerOn
		o.mu.Unlock()
		if !enabled {
			return nil
		}
		return o.AddTarget(ctx, req)
	case "task.end":
		return o.RemoveTarget(req.TargetName, req.Rotators)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOp, op)
	}
}

// RPCResponse is the typed envelope every tracking.orbit.rpc.<op> reply
// carries, mirroring the teacher's controlplane response shape. CorrelID
// lets a caller match replies to requests when multiple RPCs are in
// flight on the same reply subject.
type RPCResponse struct {
	CorrelID string         `json:"correlation_id"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Result   map[string]any `json:"result,omitempty"`
}

// HandleRPC dispatches one tracking.orbit.rpc.<op> request and returns the
// reply envelope. op is one of add_target, remove_target, status,
// get_target_position (spec.md S6).
func (o *OrbitTracker) HandleRPC(ctx context.Context, op string, req AddTargetRequest, posTime time.Time) RPCResponse {
	resp := RPCResponse{CorrelID: uuid.NewString()}

	switch op {
	case "add_target":
		if err := o.AddTarget(ctx, req); err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Success = true
		return resp
	case "remove_target":
		if err := o.RemoveTarget(req.TargetName, req.Rotators); err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Success = true
		return resp
	case "status":
		resp.Success = true
		resp.Result = o.Status()
		return resp
	case "get_target_position":
		pos, err := o.GetTargetPosition(ctx, req.TargetName, posTime)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.Success = true
		resp.Result = map[string]any{
			"elevation":  pos.ElevationDeg,
			"azimuth":    pos.AzimuthDeg,
			"range":      pos.RangeKM,
			"range_rate": pos.RangeRateKMS,
		}
		return resp
	default:
		resp.Error = fmt.Errorf("%w: %s", ErrUnknownOp, op).Error()
		return resp
	}
}

// busDispatch adapts tracking.Dispatch to the supervisor's message bus,
// replacing the source's back-reference from tracker to supervisor
// (spec.md S9).
type busDispatch struct {
	bus        Bus
	targetName string
}

var _ tracking.Dispatch = (*busDispatch)(nil)

func (d *busDispatch) EmitEvent(kind string, fields map[string]any) {
	observability.RecordEventEmitted(kind)
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["target"] = d.targetName
	if err := d.bus.Publish("event."+kind, payload); err != nil {
		log.Printf("[Supervisor] failed to publish event.%s for %s: %v", kind, d.targetName, err)
	}
}

func (d *busDispatch) PublishPointing(sample tracking.PositionSample) {
	if err := d.bus.Publish("tracking.target.position", map[string]any{
		"target":     sample.Target,
		"rotators":   sample.Rotators,
		"az":         sample.AzDeg,
		"el":         sample.ElDeg,
		"range":      sample.RangeKM,
		"range_rate": sample.RangeRate,
		"timestamp":  float64(sample.Timestamp.UnixNano()) / 1e9,
	}); err != nil {
		log.Printf("[Supervisor] failed to publish pointing for %s: %v", sample.Target, err)
	}
}

func (d *busDispatch) Logf(format string, args ...any) {
	log.Printf(format, args...)
}
