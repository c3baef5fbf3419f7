package calibration

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	lmMaxIterations = 200
	lmInitialLambda = 1e-3
	lmLambdaUp      = 10.0
	lmLambdaDown    = 0.1
	lmStepEps       = 1e-9
	lmJacobianStep  = 1e-6
)

// levenbergMarquardt minimizes the sum of squares of residual(x) starting
// from x0, using a numerically-differentiated Jacobian and gonum/mat for the
// normal-equations solve at each step. This stands in for scipy's
// least_squares (spec.md S4.3 leastsq method).
func levenbergMarquardt(residual func([]float64) []float64, x0 []float64) []float64 {
	n := len(x0)
	x := append([]float64(nil), x0...)
	r := residual(x)
	m := len(r)
	lambda := lmInitialLambda
	cost := sumSquares(r)

	for iter := 0; iter < lmMaxIterations; iter++ {
		J := jacobian(residual, x, r)

		jm := mat.NewDense(m, n, J)
		var jtj mat.Dense
		jtj.Mul(jm.T(), jm)

		rv := mat.NewVecDense(m, r)
		var jtr mat.VecDense
		jtr.MulVec(jm.T(), rv)

		var a mat.Dense
		a.CloneFrom(&jtj)
		for i := 0; i < n; i++ {
			d := a.At(i, i)
			scale := d
			if scale == 0 {
				scale = 1
			}
			a.Set(i, i, d+lambda*scale)
		}

		var delta mat.VecDense
		if err := delta.SolveVec(&a, &jtr); err != nil {
			lambda *= lmLambdaUp
			if lambda > 1e12 {
				break
			}
			continue
		}

		xNew := make([]float64, n)
		stepNorm := 0.0
		for i := range xNew {
			d := -delta.AtVec(i)
			xNew[i] = x[i] + d
			stepNorm += d * d
		}
		rNew := residual(xNew)
		costNew := sumSquares(rNew)

		if costNew < cost {
			improved := cost - costNew
			x, r, cost = xNew, rNew, costNew
			lambda *= lmLambdaDown
			if improved < lmStepEps*(1+cost) && math.Sqrt(stepNorm) < lmStepEps {
				break
			}
		} else {
			lambda *= lmLambdaUp
			if lambda > 1e12 {
				break
			}
		}
	}
	return x
}

// jacobian computes the forward-difference Jacobian of residual at x, given
// the residual value r0 already evaluated at x.
func jacobian(residual func([]float64) []float64, x, r0 []float64) []float64 {
	n := len(x)
	m := len(r0)
	J := make([]float64, m*n)
	xPert := append([]float64(nil), x...)
	for j := 0; j < n; j++ {
		h := lmJacobianStep * math.Max(1, math.Abs(x[j]))
		xPert[j] = x[j] + h
		rPert := residual(xPert)
		xPert[j] = x[j]
		for i := 0; i < m; i++ {
			J[i*n+j] = (rPert[i] - r0[i]) / h
		}
	}
	return J
}

func sumSquares(v []float64) float64 {
	return floats.Dot(v, v)
}
