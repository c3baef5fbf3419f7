package rotator

import (
	"math"

	"github.com/groundstation/rotorctl/internal/geometry"
)

// defaultCache is shared by every Model unless one is constructed with
// NewModelWithCache. The calibrator instantiates ad-hoc models inside the
// optimizer's residual evaluation loop, so parameter tuples recur heavily
// across those throwaway models; sharing one cache keeps the memoization
// useful instead of restarting cold on every allocation.
var defaultCache = newTiltCache(4096)

// Model is the seven-parameter geometric transform between motor and
// real-sky azimuth/elevation.
type Model struct {
	Params Params
	cache  *tiltCache
}

// NewModel returns a Model backed by the shared default tilt cache.
func NewModel(p Params) Model {
	return Model{Params: p, cache: defaultCache}
}

// NewModelWithCache returns a Model backed by an explicit cache, useful for
// tests that want isolation from the package-level default.
func NewModelWithCache(p Params, capacity int) Model {
	return Model{Params: p, cache: newTiltCache(capacity)}
}

func (m Model) tilts() (platform, payload geometry.Quaternion) {
	return tiltQuaternions(m.cache, m.Params)
}

// ToReal converts motor (az, el) to real-sky (az, el), both in degrees. The
// azimuth branch-discipline rule keeps the result within 180 degrees of
// azMotor even when azMotor itself lies outside (-180, 180], so that a
// trajectory spanning the wrap cut stays continuous (spec.md S4).
func (m Model) ToReal(azMotor, elMotor float64) (az, el float64) {
	p := m.Params
	azPrime := geometry.WrapDeg((azMotor - p.AzOff) / p.AzGain)
	elPrime := (elMotor - p.ElOff) / p.ElGain

	qm := geometry.EulToQ([]float64{azPrime, elPrime}, "zy", false)
	platform, payload := m.tilts()
	qr := platform.Mul(qm).Mul(payload)

	azR, elR := geometry.ToAzEl(qr)
	if azMotor-azR > 180 {
		azR += 360
	} else if azR-azMotor > 180 {
		azR -= 360
	}
	return azR, elR
}

// ToMotor converts real-sky (az, el) to motor (az, el), both in degrees. If
// wrap is false, the azimuth branch-discipline rule is applied: should
// az_out differ from az_in by more than 180 degrees, az_out is shifted by
// 360 degrees toward az_in to keep trajectories continuous across the
// +/-180 degree cut.
func (m Model) ToMotor(azReal, elReal float64, wrap bool) (az, el float64) {
	p := m.Params
	qr := geometry.EulToQ([]float64{azReal, elReal}, "zy", false)
	platform, payload := m.tilts()
	qm := platform.Conj().Mul(qr).Mul(payload.Conj())

	// q_r carries no roll, while the forward transform's tilts introduce
	// some, so the sandwich above is only a first guess. Refine (yaw, pitch)
	// until the forward composition reproduces (azReal, elReal).
	yaw, pitch := geometry.ToAzEl(qm)
	for i := 0; i < 50; i++ {
		fwd := platform.Mul(geometry.EulToQ([]float64{yaw, pitch}, "zy", false)).Mul(payload)
		a, e := geometry.ToAzEl(fwd)
		dAz, dEl := geometry.WrapDeg(azReal-a), elReal-e
		if math.Abs(dAz) < 1e-12 && math.Abs(dEl) < 1e-12 {
			break
		}
		yaw, pitch = yaw+dAz, pitch+dEl
	}
	azOut := geometry.WrapDeg(yaw*p.AzGain + p.AzOff)
	elOut := pitch*p.ElGain + p.ElOff

	if !wrap {
		if azOut-azReal > 180 {
			azOut -= 360
		} else if azReal-azOut > 180 {
			azOut += 360
		}
	}
	return azOut, elOut
}

// RateReal propagates motor-frame angular rates (azDot, elDot, degrees/s)
// into real-frame (azRateReal, elRateReal) at the given motor position.
func (m Model) RateReal(azMotor, elMotor, azDot, elDot float64) (azRate, elRate float64) {
	p := m.Params
	azPrime := geometry.WrapDeg((azMotor - p.AzOff) / p.AzGain)
	elPrime := (elMotor - p.ElOff) / p.ElGain
	qm := geometry.EulToQ([]float64{azPrime, elPrime}, "zy", false)
	platform, payload := m.tilts()
	qr := platform.Mul(qm).Mul(payload)

	omegaM := geometry.Quaternion{W: 0, X: 0, Y: elDot / p.ElGain, Z: azDot / p.AzGain}
	qmDot := omegaM.Mul(qm).Scale(0.5)
	qrDot := platform.Mul(qmDot).Mul(payload)

	omegaR := qrDot.Scale(2).Mul(qr.Conj())
	return omegaR.Z, omegaR.Y
}

// RateMotor propagates real-frame angular rates into motor-frame rates at
// the given real-sky position. This is the inverse of RateReal: gains are
// multiplied rather than divided.
func (m Model) RateMotor(azReal, elReal, azDotReal, elDotReal float64) (azDot, elDot float64) {
	p := m.Params
	qr := geometry.EulToQ([]float64{azReal, elReal}, "zy", false)
	platform, payload := m.tilts()
	qm := platform.Conj().Mul(qr).Mul(payload.Conj())

	omegaR := geometry.Quaternion{W: 0, X: 0, Y: elDotReal, Z: azDotReal}
	qrDot := omegaR.Mul(qr).Scale(0.5)
	qmDot := platform.Conj().Mul(qrDot).Mul(payload.Conj())

	omegaM := qmDot.Scale(2).Mul(qm.Conj())
	return omegaM.Z * p.AzGain, omegaM.Y * p.ElGain
}
