// rotorcal fits a rotator.Params geometric model from a set of recorded
// (motor, ground-truth) pointing pairs, mirroring the original's
// geometry.py argparse-driven calibration CLI (SPEC_FULL.md SUPPLEMENTED
// FEATURES 1).
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/groundstation/rotorctl/internal/calibration"
	"github.com/groundstation/rotorctl/internal/observability"
	"github.com/groundstation/rotorctl/internal/rotator"
)

func main() {
	input := flag.String("input", "", "calibration input CSV file")
	inputCache := flag.String("input-cache", "", "FITS directory to ingest (writes a CSV cache alongside --output)")
	output := flag.String("output", "", "path to write the fitted parameter file")
	initPath := flag.String("init", "", "initial parameter file (default: identity)")
	fit := flag.Bool("fit", true, "run the optimizer (false just reports residuals for --init)")
	iters := flag.Int("iters", calibration.DefaultIterations, "outlier-rejection iterations")
	rmDrift := flag.Int("rm-drift", 0, "encoder-drift window size (0 disables drift removal)")
	method := flag.String("method", string(calibration.MethodLeastSquares), "optimizer: leastsq, bfgs, nelder-mead")
	debugModel := flag.Bool("debug-model", false, "print to_real(to_motor(x)) round-trip residuals per point and exit")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve /metrics on this address after the run so a batch scraper can collect optimizer/calibration metrics")
	flag.Parse()

	log.SetFlags(0)

	initial := rotator.Identity()
	if *initPath != "" {
		p, err := rotator.Load(*initPath)
		if err != nil {
			log.Fatalf("rotorcal: loading --init: %v", err)
		}
		initial = p
	}

	measurements, err := loadMeasurements(*input, *inputCache, *output)
	if err != nil {
		log.Fatalf("rotorcal: %v", err)
	}
	log.Printf("loaded %d measurement(s)", len(measurements))

	if *debugModel {
		runDebugModel(initial, measurements)
		return
	}

	if !*fit {
		reportResiduals(initial, measurements)
		return
	}

	result, err := calibration.Run(measurements, calibration.Options{
		Initial:     initial,
		Method:      calibration.Method(*method),
		Iterations:  *iters,
		DriftWindow: *rmDrift,
	})
	if err != nil {
		log.Fatalf("rotorcal: calibration: %v", err)
	}

	for i, it := range result.Iterations {
		log.Printf("iteration %d: loss=%.6g used=%d rejected=%d", i, it.Loss, it.NumUsed, it.Rejected)
	}
	log.Printf("fitted params: %+v", result.Fitted)

	if *output != "" {
		if err := rotator.Save(*output, result.Fitted); err != nil {
			log.Fatalf("rotorcal: saving --output: %v", err)
		}
		log.Printf("wrote %s", *output)
	}

	if *metricsAddr != "" {
		log.Printf("serving metrics on %s (ctrl-c to exit)", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, observability.Handler()); err != nil {
			log.Fatalf("rotorcal: metrics server: %v", err)
		}
	}
}

// loadMeasurements reads --input as CSV, or --input-cache as a FITS
// directory; a FITS load also writes a CSV cache next to output (or
// alongside the FITS directory if output is unset), restoring the
// original's --input_cache behavior.
func loadMeasurements(input, inputCache, output string) ([]calibration.Measurement, error) {
	switch {
	case input != "":
		return calibration.LoadCSV(input)
	case inputCache != "":
		measurements, err := calibration.LoadFITSDir(inputCache)
		if err != nil {
			return nil, err
		}
		cachePath := output
		if cachePath == "" {
			cachePath = filepath.Join(filepath.Dir(inputCache), strings.TrimSuffix(filepath.Base(inputCache), filepath.Ext(inputCache))+".csv")
		} else {
			cachePath = strings.TrimSuffix(cachePath, filepath.Ext(cachePath)) + ".cache.csv"
		}
		if err := calibration.SaveCSV(cachePath, measurements); err != nil {
			return nil, fmt.Errorf("writing input cache: %w", err)
		}
		log.Printf("wrote FITS cache to %s", cachePath)
		return measurements, nil
	default:
		return nil, fmt.Errorf("one of --input or --input-cache is required")
	}
}

// reportResiduals prints the rms/max residual of initial against
// measurements without running the optimizer, for --fit=false inspection
// runs.
func reportResiduals(p rotator.Params, measurements []calibration.Measurement) {
	model := rotator.NewModel(p)
	var sumSq, maxNorm float64
	for _, m := range measurements {
		az, el := model.ToMotor(m.AzTruth, m.ElTruth, false)
		dAz, dEl := az-m.AzMotor, el-m.ElMotor
		norm := math.Hypot(dAz, dEl)
		sumSq += norm * norm
		if norm > maxNorm {
			maxNorm = norm
		}
	}
	n := float64(len(measurements))
	if n == 0 {
		log.Printf("no measurements to report on")
		return
	}
	log.Printf("residuals (rms=%.4g deg, max=%.4g deg, n=%d)", math.Sqrt(sumSq/n), maxNorm, len(measurements))
}

// runDebugModel prints the to_real(to_motor(x)) round-trip discrepancy for
// each measurement's truth coordinate, restoring --debug-model as the
// verification tool for invariant 3 (SPEC_FULL.md SUPPLEMENTED FEATURES 3).
func runDebugModel(p rotator.Params, measurements []calibration.Measurement) {
	model := rotator.NewModel(p)
	for i, m := range measurements {
		motorAz, motorEl := model.ToMotor(m.AzTruth, m.ElTruth, false)
		realAz, realEl := model.ToReal(motorAz, motorEl)
		dAz, dEl := realAz-m.AzTruth, realEl-m.ElTruth
		fmt.Fprintf(os.Stdout, "point %d: round-trip error az=%.3e el=%.3e\n", i, dAz, dEl)
	}
}
