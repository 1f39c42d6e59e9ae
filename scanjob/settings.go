// Package scanjob owns the per-connection scan job registry and drives each
// job through its state machine: pending → running → completed, failed, or
// cancelled. A job is backed either by a scanimage subprocess or, for the
// synthetic test device, by a simulated backend; both share the same state
// machine and event contract.
package scanjob

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/c360/scanbridge/protocol"
)

// PaperSize holds scan area dimensions in millimeters.
type PaperSize struct {
	WidthMM  float64
	HeightMM float64
}

// DefaultPaperSize is used when the requested size is missing or unknown.
const DefaultPaperSize = "letter"

// paperSizes is the fixed dimension table for supported paper sizes.
var paperSizes = map[string]PaperSize{
	"letter": {WidthMM: 215.9, HeightMM: 279.4},
	"legal":  {WidthMM: 215.9, HeightMM: 355.6},
	"a4":     {WidthMM: 210, HeightMM: 297},
	"a3":     {WidthMM: 297, HeightMM: 420},
}

// LookupPaperSize resolves a requested paper size, falling back to the
// default for unknown names. The returned name is the one actually used.
func LookupPaperSize(name string) (string, PaperSize) {
	if size, ok := paperSizes[name]; ok {
		return name, size
	}
	return DefaultPaperSize, paperSizes[DefaultPaperSize]
}

// scanModes maps protocol color modes to the subprocess --mode values.
var scanModes = map[string]string{
	"color":     "Color",
	"grayscale": "Gray",
	"bw":        "Lineart",
}

// ScanMode maps a protocol color mode to the subprocess mode flag value.
// Unrecognized values default to Color.
func ScanMode(colorMode string) string {
	if mode, ok := scanModes[colorMode]; ok {
		return mode
	}
	return "Color"
}

// defaultResolution is applied when the caller omits resolution.
const defaultResolution = 300

// Settings is the normalized, validated form of a scan request.
type Settings struct {
	DeviceID   string
	ColorMode  string
	Resolution int
	PaperSize  string
	Duplex     bool
}

// normalizeSettings validates caller-supplied settings against the fixed
// tables and fills defaults. A nil request yields pure defaults.
func normalizeSettings(req *protocol.ScanSettings) Settings {
	s := Settings{
		ColorMode:  "color",
		Resolution: defaultResolution,
		PaperSize:  DefaultPaperSize,
	}
	if req == nil {
		return s
	}

	s.DeviceID = req.ScannerID
	s.Duplex = req.Duplex
	if _, ok := scanModes[req.ColorMode]; ok {
		s.ColorMode = req.ColorMode
	}
	if req.Resolution > 0 {
		s.Resolution = req.Resolution
	}
	s.PaperSize, _ = LookupPaperSize(req.PaperSize)
	return s
}

// outputPath derives the deterministic output file location for a job.
func outputPath(dir, connID string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("scan_%s_%d.png", connID, now.UnixMilli()))
}

// formatMM renders a millimeter dimension without trailing zeros, the way
// the subprocess expects its -x/-y arguments.
func formatMM(mm float64) string {
	return strconv.FormatFloat(mm, 'f', -1, 64)
}
