package calibration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads the calibration input CSV format of spec.md S6: UTF-8
// text, '#' starts a comment to end of line, blank lines ignored. Each data
// line is "az, el, gt_az, gt_el [, ts [, ...]]" - four floats required, an
// optional ISO-8601 timestamp as the fifth field, further fields ignored.
// Values are whitespace-tolerant.
func LoadCSV(path string) ([]Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("calibration: load csv %s: %w", path, err)
	}
	defer f.Close()
	return parseCSV(f, path)
}

func parseCSV(r io.Reader, source string) ([]Measurement, error) {
	var out []Measurement
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			return nil, fmt.Errorf("calibration: %s line %d: expected at least 4 fields, got %d", source, lineNo, len(fields))
		}
		vals := make([]float64, 4)
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("calibration: %s line %d: field %d: %w", source, lineNo, i+1, err)
			}
			vals[i] = v
		}
		m := Measurement{AzMotor: vals[0], ElMotor: vals[1], AzTruth: vals[2], ElTruth: vals[3]}
		if len(fields) >= 5 {
			tsStr := strings.TrimSpace(fields[4])
			if tsStr != "" {
				ts, err := time.Parse(time.RFC3339, tsStr)
				if err != nil {
					return nil, fmt.Errorf("calibration: %s line %d: timestamp: %w", source, lineNo, err)
				}
				m.Ts = ts
				m.HasTs = true
			}
		}
		out = append(out, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("calibration: %s: %w", source, err)
	}
	return out, nil
}

// SaveCSV writes measurements to path in the same format LoadCSV reads,
// restoring the original's --input-cache behavior for FITS-derived input
// (SPEC_FULL.md SUPPLEMENTED FEATURES 2).
func SaveCSV(path string, measurements []Measurement) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("calibration: save csv %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# az, el, gt_az, gt_el, ts")
	for _, m := range measurements {
		ts := ""
		if m.HasTs {
			ts = m.Ts.UTC().Format(time.RFC3339)
		}
		if _, err := fmt.Fprintf(w, "%g, %g, %g, %g, %s\n", m.AzMotor, m.ElMotor, m.AzTruth, m.ElTruth, ts); err != nil {
			return fmt.Errorf("calibration: save csv %s: %w", path, err)
		}
	}
	return w.Flush()
}
