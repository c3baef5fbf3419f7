package calibration

import (
	"fmt"

	"gonum.org/v1/gonum/optimize"
)

// minimizeScalar minimizes loss starting from x0 using the named gonum
// method ("bfgs" or "nelder-mead"), mirroring scipy.optimize.minimize's
// BFGS/Nelder-Mead dispatch (spec.md S4.3).
func minimizeScalar(method string, loss func([]float64) float64, x0 []float64) ([]float64, error) {
	p := optimize.Problem{Func: loss}

	var m optimize.Method
	switch method {
	case "bfgs":
		m = &optimize.BFGS{}
	case "nelder-mead":
		m = &optimize.NelderMead{}
	default:
		return nil, fmt.Errorf("calibration: unknown optimization method %q", method)
	}

	result, err := optimize.Minimize(p, x0, nil, m)
	if err != nil {
		return nil, fmt.Errorf("calibration: %s: %w", method, err)
	}
	return result.X, nil
}
