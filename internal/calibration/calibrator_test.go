package calibration

import (
	"math"
	"testing"

	"github.com/groundstation/rotorctl/internal/rotator"
)

func approxEqual(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (tol %v)", name, got, want, tol)
	}
}

// Invariant 4: calibration is idempotent at the optimum.
//
// Run's pre-processing step carries every raw (az_motor, el_motor) reading
// through opts.Initial's ToMotor once (spec.md S4.3). Setting the raw
// reading equal to the truth position means pre-processing produces
// exactly the motor-frame point that truth's own ToReal round-trips back to
// the truth position (invariant 3), so the residual at params=truth is
// zero for every point without needing to hand-compute motor readings.
func TestCalibrationIdempotentAtOptimum(t *testing.T) {
	truth := rotator.Params{AzOff: 3, ElOff: -2, AzGain: 1.02, ElGain: 0.98}

	var measurements []Measurement
	for i := 0; i < 8; i++ {
		azTruth := float64(i) * 10
		elTruth := 20.0
		measurements = append(measurements, Measurement{
			AzMotor: azTruth, ElMotor: elTruth, AzTruth: azTruth, ElTruth: elTruth,
		})
	}

	result, err := Run(measurements, Options{Initial: truth, Method: MethodLeastSquares, Iterations: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	approxEqual(t, "az_off", result.Fitted.AzOff, truth.AzOff, 1e-3)
	approxEqual(t, "el_off", result.Fitted.ElOff, truth.ElOff, 1e-3)
	approxEqual(t, "az_gain", result.Fitted.AzGain, truth.AzGain, 1e-4)
	approxEqual(t, "el_gain", result.Fitted.ElGain, truth.ElGain, 1e-4)
}

// Invariant 5: outlier rejection never grows the retained set between
// iterations (kept is always a subset of the active set it filtered).
func TestOutlierRejectionMonotonic(t *testing.T) {
	var measurements []Measurement
	for i := 0; i < 9; i++ {
		v := float64(i) * 10
		measurements = append(measurements, Measurement{AzMotor: v, ElMotor: 30, AzTruth: v, ElTruth: 30})
	}
	// A single severe outlier among otherwise-perfect points.
	measurements = append(measurements, Measurement{AzMotor: 140, ElMotor: 30, AzTruth: 90, ElTruth: 30})

	result, err := Run(measurements, Options{
		Initial: rotator.Identity(), Method: MethodLeastSquares, Iterations: 3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Iterations) != 3 {
		t.Fatalf("got %d iteration results, want 3", len(result.Iterations))
	}
	for i := 1; i < len(result.Iterations); i++ {
		if result.Iterations[i].NumUsed > result.Iterations[i-1].NumUsed {
			t.Errorf("retained count grew at iteration %d: %d > %d",
				i, result.Iterations[i].NumUsed, result.Iterations[i-1].NumUsed)
		}
	}
}

// S6: ten synthetic points along a line with 0.5 degree/point linear
// azimuth encoder drift; rm_drift=3 should recover the true offsets/gains.
func TestCalibrationRecoversDrift(t *testing.T) {
	truth := rotator.Params{AzOff: 2.0, ElOff: -1.5, AzGain: 1.0, ElGain: 1.0}
	model := rotator.NewModel(truth)

	var measurements []Measurement
	for i := 0; i < 10; i++ {
		azTruth := float64(i) * 5
		elTruth := 28.0
		azMotor, elMotor := model.ToMotor(azTruth, elTruth, false)
		azMotor += 0.5 * float64(i) // linear encoder drift
		measurements = append(measurements, Measurement{
			AzMotor: azMotor, ElMotor: elMotor, AzTruth: azTruth, ElTruth: elTruth,
		})
	}

	result, err := Run(measurements, Options{
		Initial:     rotator.Identity(),
		Method:      MethodLeastSquares,
		Iterations:  DefaultIterations,
		DriftWindow: 3,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	approxEqual(t, "az_off", result.Fitted.AzOff, truth.AzOff, 0.05)
	approxEqual(t, "el_off", result.Fitted.ElOff, truth.ElOff, 0.05)
	approxEqual(t, "az_gain", result.Fitted.AzGain, truth.AzGain, 0.001)
	approxEqual(t, "el_gain", result.Fitted.ElGain, truth.ElGain, 0.001)
}

func TestRunRejectsEmptyInput(t *testing.T) {
	if _, err := Run(nil, Options{Initial: rotator.Identity()}); err == nil {
		t.Fatal("expected error for empty measurement set")
	}
}
