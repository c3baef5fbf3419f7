package calibration

import (
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// fitsCardSize is the fixed FITS header card width; a header unit is 36
// such cards (2880 bytes).
const fitsCardSize = 80

// fitsNameRe mirrors geometry.py's `re.search(r"\.fits(\.(bz2|zip|gz))?$", ...)`
// plus the plain ".fit" extension this package also accepted: it matches
// ".fits", ".fit", and ".fits" transparently compressed with bz2/zip/gz.
var fitsNameRe = regexp.MustCompile(`(?i)\.fits(\.(bz2|zip|gz))?$|\.fit$`)

// LoadFITSDir ingests every *.fits file in dir (including *.fits.bz2/.zip/.gz
// compressed variants, transparently decompressed), reading the primary-HDU
// header cards AZ-MNT/EL-MNT (measured), AZ-SOLV/EL-SOLV (plate-solved
// truth), DATE-OBS, and optionally AZ-MNTDC/EL-MNTDC (motor duty cycle).
// A legacy AZ-MOUNT/EL-MOUNT variant is accepted as a synonym for
// AZ-MNT/EL-MNT. Files whose absolute duty cycle exceeds 50 on either axis
// are skipped. Files are processed in natural-sort order (spec.md S6).
func LoadFITSDir(dir string) ([]Measurement, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("calibration: read fits dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if fitsNameRe.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })

	var out []Measurement
	for _, name := range names {
		path := filepath.Join(dir, name)
		m, skip, err := loadFITSFile(path)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func loadFITSFile(path string) (Measurement, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Measurement{}, false, fmt.Errorf("calibration: read fits %s: %w", path, err)
	}
	data, err := decompressFITS(path, raw)
	if err != nil {
		return Measurement{}, false, fmt.Errorf("calibration: decompress fits %s: %w", path, err)
	}
	cards, err := parsePrimaryHeader(data)
	if err != nil {
		return Measurement{}, false, fmt.Errorf("calibration: parse fits header %s: %w", path, err)
	}

	azMnt, azOK := cards.float("AZ-MNT")
	if !azOK {
		azMnt, azOK = cards.float("AZ-MOUNT")
	}
	elMnt, elOK := cards.float("EL-MNT")
	if !elOK {
		elMnt, elOK = cards.float("EL-MOUNT")
	}
	azSolv, azSolvOK := cards.float("AZ-SOLV")
	elSolv, elSolvOK := cards.float("EL-SOLV")
	if !azOK || !elOK || !azSolvOK || !elSolvOK {
		return Measurement{}, false, fmt.Errorf("calibration: fits %s missing required header keys", path)
	}

	if azDC, ok := cards.float("AZ-MNTDC"); ok && math.Abs(azDC) > 50 {
		return Measurement{}, true, nil
	}
	if elDC, ok := cards.float("EL-MNTDC"); ok && math.Abs(elDC) > 50 {
		return Measurement{}, true, nil
	}

	m := Measurement{AzMotor: azMnt, ElMotor: elMnt, AzTruth: azSolv, ElTruth: elSolv}
	if dateObs, ok := cards.str("DATE-OBS"); ok {
		if ts, err := time.Parse(time.RFC3339, dateObs); err == nil {
			m.Ts = ts
			m.HasTs = true
		}
	}
	return m, false, nil
}

// decompressFITS transparently decompresses raw according to path's
// extension (.gz, .bz2, .zip), mirroring astropy's transparent decompression
// of FITS files (geometry.py:65). Uncompressed .fits/.fit files pass through
// unchanged.
func decompressFITS(path string, raw []byte) ([]byte, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case strings.HasSuffix(lower, ".bz2"):
		return io.ReadAll(bzip2.NewReader(bytes.NewReader(raw)))
	case strings.HasSuffix(lower, ".zip"):
		zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
		if err != nil {
			return nil, err
		}
		if len(zr.File) == 0 {
			return nil, fmt.Errorf("empty zip archive")
		}
		f, err := zr.File[0].Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	default:
		return raw, nil
	}
}

// fitsHeader is the parsed set of primary-HDU keyword/value cards.
type fitsHeader map[string]string

func (h fitsHeader) float(key string) (float64, bool) {
	raw, ok := h[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (h fitsHeader) str(key string) (string, bool) {
	raw, ok := h[key]
	if !ok {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(raw), "'"), true
}

// parsePrimaryHeader reads 80-byte cards until an "END" card, accumulating
// "KEYWORD = value / comment" pairs. Continuation lines and HIERARCH are
// not supported; the header formats this subsystem consumes are flat.
func parsePrimaryHeader(data []byte) (fitsHeader, error) {
	h := make(fitsHeader)
	for offset := 0; offset+fitsCardSize <= len(data); offset += fitsCardSize {
		card := string(data[offset : offset+fitsCardSize])
		keyword := strings.TrimSpace(card[:8])
		if keyword == "END" {
			return h, nil
		}
		if keyword == "" || keyword == "COMMENT" || keyword == "HISTORY" {
			continue
		}
		rest := card[8:]
		if !strings.HasPrefix(strings.TrimLeft(rest, " "), "=") {
			continue
		}
		eq := strings.Index(rest, "=")
		value := rest[eq+1:]
		if slash := strings.Index(value, "/"); slash >= 0 {
			value = value[:slash]
		}
		h[keyword] = strings.TrimSpace(value)
		// Header blocks are padded to a multiple of 2880 bytes; stop once
		// we run past the buffer even without an END card.
	}
	return nil, fmt.Errorf("calibration: fits header has no END card within %d bytes", len(data))
}

var naturalChunkRe = regexp.MustCompile(`\d+|\D+`)

// naturalLess orders strings so that embedded numbers compare by numeric
// value rather than lexicographically (e.g. "img2" < "img10"), as required
// for natural-sort FITS directory iteration (spec.md S6).
func naturalLess(a, b string) bool {
	ac := naturalChunkRe.FindAllString(a, -1)
	bc := naturalChunkRe.FindAllString(b, -1)
	for i := 0; i < len(ac) && i < len(bc); i++ {
		if ac[i] == bc[i] {
			continue
		}
		an, aErr := strconv.Atoi(ac[i])
		bn, bErr := strconv.Atoi(bc[i])
		if aErr == nil && bErr == nil {
			return an < bn
		}
		return ac[i] < bc[i]
	}
	return len(ac) < len(bc)
}
