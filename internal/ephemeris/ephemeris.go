// Package ephemeris defines the adapter contract this subsystem consumes
// from the (external, out-of-scope) satellite/celestial ephemeris provider,
// plus a synthetic in-memory implementation used by tests and by the
// cmd/rotorctl daemon.
package ephemeris

import (
	"context"
	"time"
)

// Pass is a plausible future visibility interval for a target. Produced by
// the ephemeris adapter and treated read-only by the tracking subsystem.
type Pass struct {
	AOS          time.Time
	LOS          time.Time
	MaxElevDeg   float64
	HasMaxElev   bool
	AzTrajectory []float64
}

// Position is a topocentric frame decomposition at one instant: elevation,
// azimuth, range, and range-rate, all in the observer-local (ground
// station) frame.
type Position struct {
	ElevationDeg float64
	AzimuthDeg   float64
	RangeKM      float64
	RangeRateKMS float64
}

// Target is a handle to a trackable sky object, identified by TargetName.
// A Target is either a Satellite (TLE propagation) or a CelestialObject
// (analytic ephemeris); the distinction affects only whether
// atmospheric-refraction correction is applied by default (see Celestial).
type Target interface {
	TargetName() string

	// GetNextPass returns the next upcoming pass, or ok=false if none is
	// known/available.
	GetNextPass(ctx context.Context) (pass Pass, ok bool, err error)

	// PosAt returns the target's topocentric position at t. If accurate is
	// true, the returned position includes atmospheric-refraction
	// correction ("altaz('standard')" in the original).
	PosAt(ctx context.Context, t time.Time, accurate bool) (Position, error)

	// CalculatePasses recomputes the target's pass schedule. Called eagerly
	// by the tracker on LOS->WAITING (spec.md S9); callers should bound it
	// with ctx.
	CalculatePasses(ctx context.Context) error

	// Celestial reports whether this target is a CelestialObject (Sun,
	// Moon, ...) as opposed to a TLE-propagated Satellite. TargetTracker
	// uses this to default high_accuracy to true for celestial targets.
	Celestial() bool

	// ToDict returns a status-reporting snapshot suitable for inclusion in
	// RPC status replies.
	ToDict() map[string]any
}

// Provider resolves target names to Target handles, mirroring the external
// ephemeris adapter's get_satellite/get_celestial_object contract.
type Provider interface {
	// IsCelestialName reports whether name should be resolved as a
	// CelestialObject (CelestialObject.is_class_of in the original).
	IsCelestialName(name string) bool

	GetSatellite(ctx context.Context, name string) (Target, bool, error)
	GetCelestialObject(ctx context.Context, name string) (Target, bool, error)
}

// Resolve looks up name via provider, dispatching to GetCelestialObject or
// GetSatellite based on IsCelestialName, mirroring add_target's resolution
// order (spec.md S4.4 step 3).
func Resolve(ctx context.Context, provider Provider, name string) (Target, bool, error) {
	if provider.IsCelestialName(name) {
		return provider.GetCelestialObject(ctx, name)
	}
	return provider.GetSatellite(ctx, name)
}
