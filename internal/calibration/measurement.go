package calibration

import (
	"time"

	"github.com/groundstation/rotorctl/internal/geometry"
)

// Measurement is one (az_motor, el_motor, az_truth, el_truth, ts?) record
// (spec.md S3).
type Measurement struct {
	AzMotor float64
	ElMotor float64
	AzTruth float64
	ElTruth float64
	Ts      time.Time
	HasTs   bool
}

// normalizeTruthAz wraps azTruth to (-180, 180] and, if it then disagrees
// with azRef by more than 180 degrees, shifts it by +/-360 so the pair
// stays on the same branch (spec.md S3, "Measurement record"). Pre-processing
// (spec.md S4.3) calls this with azRef set to the motor reading *after* it
// has been carried through the initial model's ToMotor, not the raw reading,
// matching the original implementation's ordering.
func normalizeTruthAz(azRef, azTruth float64) float64 {
	wrapped := geometry.WrapDeg(azTruth)
	if wrapped-azRef > 180 {
		wrapped -= 360
	} else if azRef-wrapped > 180 {
		wrapped += 360
	}
	return wrapped
}
