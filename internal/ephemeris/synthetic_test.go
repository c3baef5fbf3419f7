package ephemeris

import (
	"context"
	"testing"
	"time"
)

func TestSyntheticTargetPosAtMidpoint(t *testing.T) {
	aos := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	los := aos.Add(60 * time.Second)
	target := &SyntheticTarget{
		Name: "TESTSAT", AOS: aos, LOS: los, MaxElev: 80,
		StartAz: 10, EndAz: 190, RangeKM: 500, RangeRateKMS: 7,
	}

	pos, err := target.PosAt(context.Background(), aos.Add(30*time.Second), false)
	if err != nil {
		t.Fatalf("PosAt: %v", err)
	}
	if pos.ElevationDeg < 79.9 || pos.ElevationDeg > 80.1 {
		t.Errorf("mid-pass elevation = %v, want ~80 (peak)", pos.ElevationDeg)
	}
	if pos.AzimuthDeg < 99 || pos.AzimuthDeg > 101 {
		t.Errorf("mid-pass azimuth = %v, want ~100", pos.AzimuthDeg)
	}
}

func TestSyntheticTargetPosAtEndpoints(t *testing.T) {
	aos := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	los := aos.Add(60 * time.Second)
	target := &SyntheticTarget{Name: "TESTSAT", AOS: aos, LOS: los, MaxElev: 45, StartAz: 0, EndAz: 90}

	posAOS, err := target.PosAt(context.Background(), aos, false)
	if err != nil {
		t.Fatalf("PosAt(aos): %v", err)
	}
	if posAOS.ElevationDeg > 0.01 {
		t.Errorf("elevation at AOS = %v, want ~0", posAOS.ElevationDeg)
	}

	posLOS, err := target.PosAt(context.Background(), los, false)
	if err != nil {
		t.Fatalf("PosAt(los): %v", err)
	}
	if posLOS.ElevationDeg > 0.01 {
		t.Errorf("elevation at LOS = %v, want ~0", posLOS.ElevationDeg)
	}
}

func TestSyntheticTargetRefractionLiftsLowElevation(t *testing.T) {
	aos := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	los := aos.Add(100 * time.Second)
	target := &SyntheticTarget{Name: "LOWPASS", AOS: aos, LOS: los, MaxElev: 5, StartAz: 0, EndAz: 10}

	at := aos.Add(5 * time.Second)
	plain, err := target.PosAt(context.Background(), at, false)
	if err != nil {
		t.Fatalf("PosAt plain: %v", err)
	}
	refracted, err := target.PosAt(context.Background(), at, true)
	if err != nil {
		t.Fatalf("PosAt refracted: %v", err)
	}
	if refracted.ElevationDeg <= plain.ElevationDeg {
		t.Errorf("refraction-corrected elevation %v should exceed plain %v", refracted.ElevationDeg, plain.ElevationDeg)
	}
}

func TestSyntheticProviderResolvesCelestialVsSatellite(t *testing.T) {
	provider := NewSyntheticProvider()
	aos := time.Now().Add(time.Minute)
	provider.Targets["sun"] = &SyntheticTarget{Name: "sun", IsCelestial: true, AOS: aos, LOS: aos.Add(time.Hour)}
	provider.Targets["sat-1"] = &SyntheticTarget{Name: "sat-1", AOS: aos, LOS: aos.Add(time.Hour)}

	target, ok, err := Resolve(context.Background(), provider, "sun")
	if err != nil || !ok {
		t.Fatalf("Resolve(sun) ok=%v err=%v", ok, err)
	}
	if !target.Celestial() {
		t.Errorf("expected sun to resolve as celestial")
	}

	target, ok, err = Resolve(context.Background(), provider, "sat-1")
	if err != nil || !ok {
		t.Fatalf("Resolve(sat-1) ok=%v err=%v", ok, err)
	}
	if target.Celestial() {
		t.Errorf("expected sat-1 to resolve as non-celestial")
	}

	_, ok, err = Resolve(context.Background(), provider, "unknown")
	if err != nil {
		t.Fatalf("Resolve(unknown): %v", err)
	}
	if ok {
		t.Errorf("expected unknown target to not resolve")
	}
}
