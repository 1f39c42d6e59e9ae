package scanjob

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Heartbeat tuning for the subprocess stdout channel. Each chunk of output
// advances the heuristic progress by heartbeatStep, never past heartbeatCap;
// only an explicit stderr progress line can go higher before completion.
const (
	heartbeatStep = 10
	heartbeatCap  = 90
)

// killGrace is how long a terminated subprocess gets to exit on SIGTERM
// before it is killed outright.
const killGrace = 3 * time.Second

// progressLine matches the subprocess's explicit progress reports on stderr,
// e.g. "Progress: 37.4%".
var progressLine = regexp.MustCompile(`Progress: (\d+(?:\.\d+)?)%`)

// processBackend runs one scanimage subprocess and parses its output streams
// into progress reports.
type processBackend struct {
	binary     string
	args       []string
	outputFile string
	logger     *slog.Logger
}

func newProcessBackend(binary string, settings Settings, outputFile string, logger *slog.Logger) *processBackend {
	return &processBackend{
		binary:     binary,
		args:       buildScanArgs(settings, outputFile),
		outputFile: outputFile,
		logger:     logger,
	}
}

// buildScanArgs constructs the device-control command line for a scan. The
// device selector is omitted when no device id was requested, letting the
// subprocess pick its default device.
func buildScanArgs(settings Settings, outputFile string) []string {
	_, size := LookupPaperSize(settings.PaperSize)

	args := []string{
		"--format=png",
		fmt.Sprintf("--resolution=%d", settings.Resolution),
		"-x", formatMM(size.WidthMM),
		"-y", formatMM(size.HeightMM),
		fmt.Sprintf("--output-file=%s", outputFile),
	}
	if settings.DeviceID != "" {
		args = append(args, fmt.Sprintf("--device=%s", settings.DeviceID))
	}
	args = append(args, fmt.Sprintf("--mode=%s", ScanMode(settings.ColorMode)))
	return args
}

// run spawns the subprocess and supervises it to confirmed exit. Progress is
// a heuristic heartbeat from stdout, overridden by explicit stderr progress
// lines. Success requires exit code 0 and the output file on disk.
func (b *processBackend) run(ctx context.Context, progress func(int)) (*result, error) {
	cmd := exec.CommandContext(ctx, b.binary, b.args...)

	// On cancellation ask nicely first; CommandContext falls back to
	// SIGKILL once WaitDelay expires.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to start scan process: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to start scan process: %v", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scan process: %v", err)
	}
	b.logger.Info("Scan process started", "pid", cmd.Process.Pid, "binary", b.binary)

	var wg sync.WaitGroup
	wg.Add(2)
	go b.heartbeatLoop(stdout, progress, &wg)
	go b.progressLineLoop(stderr, progress, &wg)
	wg.Wait()

	err = cmd.Wait()

	if ctx.Err() != nil {
		// Cancellation or timeout wins over whatever exit state the
		// signal produced. The process is confirmed gone by now.
		return nil, ctx.Err()
	}

	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, fmt.Errorf("scan process exited with code %d", exitCode)
	}

	data, err := os.ReadFile(b.outputFile)
	if err != nil {
		return nil, fmt.Errorf("scan process exited with code 0 but produced no output file")
	}

	return &result{
		image:    data,
		filename: filepath.Base(b.outputFile),
		path:     b.outputFile,
	}, nil
}

// heartbeatLoop treats stdout chunks as a coarse progress signal: each chunk
// advances the counter by a fixed step, capped below 100 so only completion
// or an explicit report can finish the bar.
func (b *processBackend) heartbeatLoop(stdout io.Reader, progress func(int), wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, 4096)
	current := 0
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if current < heartbeatCap {
				current += heartbeatStep
				if current > heartbeatCap {
					current = heartbeatCap
				}
			}
			progress(current)
		}
		if err != nil {
			return
		}
	}
}

// progressLineLoop scans stderr for explicit "Progress: N%" lines; an exact
// percentage supersedes the stdout heuristic.
func (b *processBackend) progressLineLoop(stderr io.Reader, progress func(int), wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		match := progressLine.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		if value, err := strconv.ParseFloat(match[1], 64); err == nil {
			progress(int(value))
		}
	}
}
