// Package calibration implements the nonlinear least-squares calibration
// loop: measurement ingestion (CSV/FITS), optional encoder-drift removal,
// iterative outlier rejection, and the leastsq/bfgs/nelder-mead optimizer
// dispatch of spec.md S4.3.
package calibration

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/groundstation/rotorctl/internal/geometry"
	"github.com/groundstation/rotorctl/internal/observability"
	"github.com/groundstation/rotorctl/internal/rotator"
)

// Method selects which optimizer Run dispatches to.
type Method string

const (
	MethodLeastSquares Method = "leastsq"
	MethodBFGS         Method = "bfgs"
	MethodNelderMead   Method = "nelder-mead"
)

// DefaultIterations is the default number of outlier-rejection rounds
// (spec.md S4.3 --iters, default 2).
const DefaultIterations = 2

// Options configures a calibration Run.
type Options struct {
	Initial rotator.Params
	Method  Method
	// Iterations is the number of outlier-rejection rounds; 0 means
	// DefaultIterations.
	Iterations int
	// DriftWindow is the number of points at each end used to anchor the
	// linear drift model; 0 disables drift removal.
	DriftWindow int
}

// IterationResult records one outlier-rejection round's fit.
type IterationResult struct {
	Params   rotator.Params
	Loss     float64
	NumUsed  int
	Rejected int
}

// Result is the outcome of a full calibration Run.
type Result struct {
	Fitted     rotator.Params
	Iterations []IterationResult
}

// Run fits rotator parameters to measurements using the method and
// iteration/drift settings in opts, following spec.md S4.3 exactly:
//
//  1. Pre-processing: every measurement's (az_motor, el_motor) is carried
//     once through opts.Initial's ToMotor, bringing it into the same frame
//     the optimizer's to_real residual function expects.
//  2. Each outlier-rejection iteration re-fits from opts.Initial's
//     parameter vector (never warm-started from the previous iteration),
//     re-evaluates the drift model against the iteration's own fitted
//     params, and then drops points whose residual norm is not less than
//     3x the iteration's median residual norm before the next round.
func Run(measurements []Measurement, opts Options) (Result, error) {
	if len(measurements) == 0 {
		return Result{}, fmt.Errorf("calibration: no measurements to fit")
	}
	if opts.Method == "" {
		opts.Method = MethodLeastSquares
	}
	iterations := opts.Iterations
	if iterations == 0 {
		iterations = DefaultIterations
	}

	initialModel := rotator.NewModel(opts.Initial)
	pts := make([]point, len(measurements))
	for i, m := range measurements {
		az, el := initialModel.ToMotor(m.AzMotor, m.ElMotor, false)
		truthAz := normalizeTruthAz(az, m.AzTruth)
		pts[i] = point{Az: az, El: el, AzTruth: truthAz, ElTruth: m.ElTruth}
	}

	x0 := opts.Initial.Vector()
	active := pts
	result := Result{Fitted: opts.Initial}

	for i := 0; i < iterations; i++ {
		runStart := time.Now()
		x, loss, err := fitOnce(opts.Method, active, opts.DriftWindow, x0)
		observability.RecordOptimizerRun(string(opts.Method), time.Since(runStart))
		if err != nil {
			return Result{}, fmt.Errorf("calibration: iteration %d: %w", i, err)
		}
		fitted := rotator.ParamsFromVector(x)

		norms := residualNorms(fitted, active, opts.DriftWindow)
		threshold := 3.0 * median(norms)
		kept := make([]point, 0, len(active))
		for j, n := range norms {
			if n < threshold {
				kept = append(kept, active[j])
			}
		}

		result.Fitted = fitted
		result.Iterations = append(result.Iterations, IterationResult{
			Params:   fitted,
			Loss:     loss,
			NumUsed:  len(active),
			Rejected: len(active) - len(kept),
		})
		observability.SetCalibrationLoss(loss)
		observability.SetRetainedPoints(len(kept))
		active = kept
		if len(active) == 0 {
			break
		}
	}
	return result, nil
}

// fitOnce runs a single optimizer pass over pts, starting from x0.
func fitOnce(method Method, pts []point, driftWindow int, x0 []float64) ([]float64, float64, error) {
	residualFn := func(x []float64) []float64 {
		return residuals(rotator.ParamsFromVector(x), pts, driftWindow)
	}
	lossFn := func(x []float64) float64 {
		r := residualFn(x)
		return meanSquare(r)
	}

	switch method {
	case MethodLeastSquares:
		x := levenbergMarquardt(residualFn, x0)
		return x, meanSquare(residualFn(x)), nil
	case MethodBFGS, MethodNelderMead:
		x, err := minimizeScalar(string(method), lossFn, x0)
		if err != nil {
			return nil, 0, err
		}
		return x, lossFn(x), nil
	default:
		return nil, 0, fmt.Errorf("unknown method %q", method)
	}
}

// residuals computes the flattened [az0, el0, az1, el1, ...] residual
// vector: ground truth minus the model's to_real prediction for each
// drift-corrected point, with the azimuth component wrapped to (-180, 180].
func residuals(p rotator.Params, pts []point, driftWindow int) []float64 {
	model := rotator.NewModel(p)
	drift := zeroDrift(pts)
	if driftWindow > 0 && len(pts) > 1 {
		drift = computeDrift(model, pts, driftWindow)
	}

	out := make([]float64, 0, 2*len(pts))
	for i, pt := range pts {
		azM := pt.Az - drift[i].Az
		elM := pt.El - drift[i].El
		azR, elR := model.ToReal(azM, elM)
		azErr := geometry.WrapDeg(pt.AzTruth - azR)
		elErr := pt.ElTruth - elR
		out = append(out, azErr, elErr)
	}
	return out
}

// residualNorms returns, per point, sqrt(azErr^2 + elErr^2).
func residualNorms(p rotator.Params, pts []point, driftWindow int) []float64 {
	r := residuals(p, pts, driftWindow)
	norms := make([]float64, len(pts))
	for i := range pts {
		az, el := r[2*i], r[2*i+1]
		norms[i] = math.Sqrt(az*az + el*el)
	}
	return norms
}

func meanSquare(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Dot(v, v) / float64(len(v))
}

// median matches numpy.median's linear-interpolation convention for even
// sample counts.
func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
