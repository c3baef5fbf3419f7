package calibration

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/groundstation/rotorctl/internal/geometry"
	"github.com/groundstation/rotorctl/internal/rotator"
)

// point is one pre-processed calibration record: Az/El are the measurement
// already carried through the initial model's ToMotor once (spec.md S4.3
// Pre-processing), AzTruth/ElTruth are the ground-truth sky coordinates.
type point struct {
	Az, El           float64
	AzTruth, ElTruth float64
}

// driftAt holds the per-axis encoder-drift correction to subtract from a
// point's motor reading before computing its residual.
type driftAt struct {
	Az, El float64
}

// zeroDrift returns a no-op drift series the same length as pts, used when
// drift removal is disabled.
func zeroDrift(pts []point) []driftAt {
	return make([]driftAt, len(pts))
}

// computeDrift models the per-point encoder drift as linear interpolation,
// independently on each axis, along that axis's cumulative absolute slew
// distance (spec.md S4.3): mean pointing error on the first k points anchors
// one end, mean error on the last k points anchors the other, and every
// intermediate point's correction is interpolated between them in
// proportion to how far it has slewed on that axis. The model's current
// fitted parameters (not the initial ones) determine the motor-frame
// ground truth used to measure the endpoint errors, so this is re-evaluated
// every outlier-rejection iteration.
func computeDrift(model rotator.Model, pts []point, k int) []driftAt {
	n := len(pts)
	out := make([]driftAt, n)
	if n == 0 {
		return out
	}
	if k > n {
		k = n
	}

	errAz := make([]float64, n)
	errEl := make([]float64, n)
	for i, pt := range pts {
		gtAz, gtEl := model.ToMotor(pt.AzTruth, pt.ElTruth, false)
		errAz[i] = geometry.WrapDeg(gtAz - pt.Az)
		errEl[i] = geometry.WrapDeg(gtEl - pt.El)
	}

	meanErr := func(lo, hi int) (az, el float64) {
		return stat.Mean(errAz[lo:hi], nil), stat.Mean(errEl[lo:hi], nil)
	}

	err0Az, err0El := meanErr(0, k)
	err1Az, err1El := meanErr(n-k, n)

	if n == 1 {
		out[0] = driftAt{Az: -err0Az, El: -err0El}
		return out
	}

	cumAz := make([]float64, n-1)
	cumEl := make([]float64, n-1)
	var runAz, runEl float64
	for i := 1; i < n; i++ {
		runAz += math.Abs(geometry.WrapDeg(pts[i].Az - pts[i-1].Az))
		runEl += math.Abs(geometry.WrapDeg(pts[i].El - pts[i-1].El))
		cumAz[i-1] = runAz
		cumEl[i-1] = runEl
	}

	out[0] = driftAt{Az: -err0Az, El: -err0El}
	totalAz, totalEl := cumAz[n-2], cumEl[n-2]
	for i := 1; i < n; i++ {
		fracAz := 0.0
		if totalAz != 0 {
			fracAz = cumAz[i-1] / totalAz
		}
		fracEl := 0.0
		if totalEl != 0 {
			fracEl = cumEl[i-1] / totalEl
		}
		out[i] = driftAt{
			Az: -(err0Az + (err1Az-err0Az)*fracAz),
			El: -(err0El + (err1El-err0El)*fracEl),
		}
	}
	return out
}
