package ephemeris

import (
	"context"
	"fmt"
	"math"
	"time"
)

// SyntheticTarget is a deterministic, in-memory Target used by tests and by
// the cmd/rotorctl daemon, where no real ephemeris provider is wired.
type SyntheticTarget struct {
	Name        string
	IsCelestial bool

	// AOS/LOS describe a single upcoming pass.
	AOS, LOS time.Time
	MaxElev  float64

	// Track parametrizes a simple linear az/el ground track used by PosAt:
	// at time t, elevation = MaxElev - drop*|midOffset|, azimuth advances
	// linearly from StartAz to EndAz across [AOS, LOS].
	StartAz, EndAz float64
	RangeKM        float64
	RangeRateKMS   float64

	passesCalculated int
}

var _ Target = (*SyntheticTarget)(nil)

func (t *SyntheticTarget) TargetName() string { return t.Name }

func (t *SyntheticTarget) Celestial() bool { return t.IsCelestial }

func (t *SyntheticTarget) GetNextPass(ctx context.Context) (Pass, bool, error) {
	select {
	case <-ctx.Done():
		return Pass{}, false, ctx.Err()
	default:
	}
	if t.AOS.IsZero() || t.LOS.IsZero() {
		return Pass{}, false, nil
	}
	return Pass{AOS: t.AOS, LOS: t.LOS, MaxElevDeg: t.MaxElev, HasMaxElev: true}, true, nil
}

func (t *SyntheticTarget) PosAt(ctx context.Context, at time.Time, accurate bool) (Position, error) {
	select {
	case <-ctx.Done():
		return Position{}, ctx.Err()
	default:
	}
	if t.LOS.Before(t.AOS) || t.LOS.Equal(t.AOS) {
		return Position{}, fmt.Errorf("ephemeris: synthetic target %s has degenerate pass window", t.Name)
	}
	total := t.LOS.Sub(t.AOS).Seconds()
	frac := at.Sub(t.AOS).Seconds() / total

	az := t.StartAz + (t.EndAz-t.StartAz)*frac
	// Simple inverted-V elevation profile peaking at mid-pass.
	el := t.MaxElev * (1 - math.Abs(2*frac-1))
	if accurate {
		el += refractionCorrectionDeg(el)
	}
	return Position{
		ElevationDeg: el,
		AzimuthDeg:   az,
		RangeKM:      t.RangeKM,
		RangeRateKMS: t.RangeRateKMS * (2*frac - 1),
	}, nil
}

func (t *SyntheticTarget) CalculatePasses(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	t.passesCalculated++
	return nil
}

func (t *SyntheticTarget) ToDict() map[string]any {
	return map[string]any{
		"target_name": t.Name,
		"celestial":   t.IsCelestial,
		"aos":         t.AOS,
		"los":         t.LOS,
		"max_elev":    t.MaxElev,
	}
}

// refractionCorrectionDeg is a small, deliberately crude atmospheric
// refraction model (bends low-elevation targets upward), adequate for the
// synthetic provider's demo/test role; the real correction is the external
// ephemeris provider's responsibility (spec.md S1).
func refractionCorrectionDeg(elevationDeg float64) float64 {
	if elevationDeg > 15 {
		return 0
	}
	// Bennett's formula, degrees.
	arg := elevationDeg + 7.31/(elevationDeg+4.4)
	return 1 / math.Tan(arg*math.Pi/180) / 60
}

// SyntheticProvider is an in-memory Provider backed by a fixed set of named
// targets, with celestial names distinguished by a static allowlist.
type SyntheticProvider struct {
	Targets        map[string]*SyntheticTarget
	CelestialNames map[string]bool
}

// NewSyntheticProvider returns a provider with the Sun and Moon registered
// as celestial names (no targets populated).
func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{
		Targets: make(map[string]*SyntheticTarget),
		CelestialNames: map[string]bool{
			"sun":  true,
			"moon": true,
		},
	}
}

func (p *SyntheticProvider) IsCelestialName(name string) bool {
	return p.CelestialNames[name]
}

func (p *SyntheticProvider) GetSatellite(ctx context.Context, name string) (Target, bool, error) {
	t, ok := p.Targets[name]
	if !ok {
		return nil, false, nil
	}
	return t, true, nil
}

func (p *SyntheticProvider) GetCelestialObject(ctx context.Context, name string) (Target, bool, error) {
	t, ok := p.Targets[name]
	if !ok {
		return nil, false, nil
	}
	return t, true, nil
}
