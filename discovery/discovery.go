// Package discovery lists the document scanners attached to the host by
// invoking the device-listing command and parsing its text output.
//
// Discovery never fails visibly: a listing error or unparseable output is
// logged and surfaced to the caller as an empty result. Outside production
// mode an empty result gains one synthetic test device so the full protocol
// surface stays exercisable without hardware.
package discovery

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/c360/scanbridge/protocol"
)

// Synthetic test device, appended in non-production mode when no physical
// device is found. Scan requests naming TestScannerID take the simulated
// path and never spawn a subprocess.
const (
	TestScannerID     = "test:scanner"
	TestScannerName   = "Test Scanner (Development)"
	TestScannerDriver = "test"
)

// listTimeout bounds a single discovery run; scanimage -L probes buses and
// can hang on wedged USB devices.
const listTimeout = 30 * time.Second

// deviceLine matches one line of scanimage -L output, e.g.
//
//	device 'epson2:libusb:001:004' is a Epson GT-1500 flatbed scanner
var deviceLine = regexp.MustCompile(`device '([^']+)' is a (.+)$`)

// Discoverer lists attached scan devices.
type Discoverer struct {
	binary          string
	includeTestDev  bool
	logger          *slog.Logger
	listDeviceLines func(ctx context.Context) ([]byte, error)
}

// NewDiscoverer creates a Discoverer that shells out to the given
// device-listing binary. includeTestDev enables the synthetic fallback.
func NewDiscoverer(binary string, includeTestDev bool, logger *slog.Logger) *Discoverer {
	d := &Discoverer{
		binary:         binary,
		includeTestDev: includeTestDev,
		logger:         logger,
	}
	d.listDeviceLines = d.runListCommand
	return d
}

// Discover returns the devices currently attached. The result is recomputed
// on every call and never cached. An empty slice is a valid answer.
func (d *Discoverer) Discover(ctx context.Context) []protocol.Scanner {
	output, err := d.listDeviceLines(ctx)
	if err != nil {
		// Non-fatal: scanimage exits nonzero when no device is present.
		d.logger.Warn("Device listing failed", "binary", d.binary, "error", err)
	}

	scanners := ParseDeviceList(output)

	if len(scanners) == 0 && d.includeTestDev {
		scanners = append(scanners, TestScanner())
	}

	d.logger.Info("Device discovery finished", "count", len(scanners))
	return scanners
}

// runListCommand invokes the listing binary with -L.
func (d *Discoverer) runListCommand(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.binary, "-L")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	return out.Bytes(), err
}

// ParseDeviceList extracts device descriptors from listing output. Lines
// that do not match the device pattern are skipped.
func ParseDeviceList(output []byte) []protocol.Scanner {
	scanners := []protocol.Scanner{}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		match := deviceLine.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}

		id := match[1]
		scanners = append(scanners, protocol.Scanner{
			ID:     id,
			Name:   strings.TrimSpace(match[2]),
			Driver: driverOf(id),
		})
	}

	return scanners
}

// TestScanner returns the synthetic development device descriptor.
func TestScanner() protocol.Scanner {
	return protocol.Scanner{
		ID:     TestScannerID,
		Name:   TestScannerName,
		Driver: TestScannerDriver,
	}
}

// driverOf extracts the driver name: the substring before the first colon,
// or the whole id when no colon is present.
func driverOf(id string) string {
	if idx := strings.IndexByte(id, ':'); idx >= 0 {
		return id[:idx]
	}
	return id
}
