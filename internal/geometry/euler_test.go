package geometry

import (
	"math"
	"testing"
)

func TestWrapDegRange(t *testing.T) {
	cases := []float64{0, 180, -180, 359, -359, 181, -181, 720.5, -720.5}
	for _, x := range cases {
		w := WrapDeg(x)
		if w <= -180 || w > 180 {
			t.Errorf("WrapDeg(%v) = %v, want value in (-180, 180]", x, w)
		}
	}
}

func TestWrapDegIdempotent(t *testing.T) {
	for _, x := range []float64{0, 45.25, -170.1, 180, -180, 359.9} {
		w1 := WrapDeg(x)
		w2 := WrapDeg(w1)
		if math.Abs(w1-w2) > 1e-9 {
			t.Errorf("WrapDeg not idempotent for %v: %v != %v", x, w1, w2)
		}
	}
}

func TestWrapDegBoundaryValues(t *testing.T) {
	if got := WrapDeg(180); math.Abs(got-180) > 1e-9 {
		t.Errorf("WrapDeg(180) = %v, want 180", got)
	}
	if got := WrapDeg(-180); math.Abs(got-180) > 1e-9 {
		t.Errorf("WrapDeg(-180) = %v, want 180", got)
	}
	if got := WrapDeg(0); math.Abs(got) > 1e-9 {
		t.Errorf("WrapDeg(0) = %v, want 0", got)
	}
}

func TestEulToQIdentityYieldsAzEl(t *testing.T) {
	q := EulToQ([]float64{90, 45}, "zy", false)
	az, el := ToAzEl(q)
	if math.Abs(az-90) > 1e-6 {
		t.Errorf("az = %v, want 90", az)
	}
	if math.Abs(el-45) > 1e-6 {
		t.Errorf("el = %v, want 45", el)
	}
}

func TestToAzElZeroIsNorthHorizon(t *testing.T) {
	az, el := ToAzEl(Identity)
	if math.Abs(az) > 1e-9 || math.Abs(el) > 1e-9 {
		t.Errorf("ToAzEl(Identity) = (%v, %v), want (0, 0)", az, el)
	}
}
