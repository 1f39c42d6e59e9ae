package scanjob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/c360/scanbridge/discovery"
	"github.com/c360/scanbridge/errors"
	"github.com/c360/scanbridge/metric"
	"github.com/c360/scanbridge/protocol"
)

// Options configures the job controller.
type Options struct {
	// OutputDir is where temporary scan output files are written.
	OutputDir string
	// ScanimagePath is the device-control binary.
	ScanimagePath string
	// JobTimeout bounds a single job's wall-clock duration.
	JobTimeout time.Duration
	// SimStepDelay is the inter-step delay of the simulated backend.
	SimStepDelay time.Duration
}

// Controller owns the active-job registry: at most one job per connection id
// at any time. All registry mutations go through its methods, guarded by a
// mutex, so job goroutines and connection handlers can race safely.
//
// A second scan request on a connection with a running job is rejected; the
// slot is only reused after the previous job's backend has confirmably
// exited.
type Controller struct {
	opts    Options
	cleaner *Cleaner
	logger  *slog.Logger
	metrics *Metrics

	mu   sync.Mutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewController creates a job controller.
func NewController(opts Options, cleaner *Cleaner, registry *metric.MetricsRegistry, logger *slog.Logger) *Controller {
	return &Controller{
		opts:    opts,
		cleaner: cleaner,
		logger:  logger,
		metrics: newMetrics(registry, "scanjob"),
		jobs:    make(map[string]*Job),
	}
}

// StartScan accepts a scan request for a connection. It emits the scanning
// event and launches the job; progress and the terminal event follow on the
// emitter asynchronously. Returns ErrJobInProgress if the connection already
// owns an active job.
func (c *Controller) StartScan(ctx context.Context, connID string, req *protocol.ScanSettings, emitter Emitter) error {
	settings := normalizeSettings(req)

	var b backend
	var outputFile string
	if settings.DeviceID == discovery.TestScannerID {
		b = newSimulatedBackend(c.opts.SimStepDelay)
	} else {
		if err := os.MkdirAll(c.opts.OutputDir, 0o755); err != nil {
			return errors.WrapFatal(err, "scanjob", "StartScan", "create output directory")
		}
		outputFile = outputPath(c.opts.OutputDir, connID, time.Now())
		b = newProcessBackend(c.opts.ScanimagePath, settings, outputFile, c.logger)
	}

	job := newJob(connID, settings, outputFile, b, emitter)

	// Wire cancellation before the job becomes visible in the registry so
	// Cancel and HandleDisconnect never observe a job without a cancel func.
	jobCtx, cancel := context.WithCancelCause(ctx)
	jobCtx, timeoutCancel := context.WithTimeoutCause(jobCtx, c.opts.JobTimeout, errors.ErrJobTimeout)
	job.cancel = cancel

	c.mu.Lock()
	if _, exists := c.jobs[connID]; exists {
		c.mu.Unlock()
		timeoutCancel()
		cancel(nil)
		if c.metrics != nil {
			c.metrics.jobsRejected.Inc()
		}
		return errors.ErrJobInProgress
	}
	c.jobs[connID] = job
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.jobsActive.Inc()
	}

	emitter.Emit(protocol.NewScanning(fmt.Sprintf("Starting scan on %s paper", settings.PaperSize)))
	c.logger.Info("Scan job accepted",
		"conn_id", connID,
		"device", settings.DeviceID,
		"paper_size", settings.PaperSize,
		"resolution", settings.Resolution)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer timeoutCancel()
		job.run(jobCtx, c.onJobDone)
	}()

	return nil
}

// Cancel tears down the connection's active job in response to an explicit
// cancel command; the job emits a cancelled event once its backend has
// exited. Returns ErrNoActiveJob when the connection has nothing running.
func (c *Controller) Cancel(connID string) error {
	c.mu.Lock()
	job, ok := c.jobs[connID]
	c.mu.Unlock()

	if !ok {
		return errors.ErrNoActiveJob
	}

	c.logger.Info("Cancelling scan job", "conn_id", connID, "progress", job.Progress())
	job.cancel(causeClientCancel)
	return nil
}

// HandleDisconnect tears down the connection's active job without emitting
// any event; there is no connection left to receive one.
func (c *Controller) HandleDisconnect(connID string) {
	c.mu.Lock()
	job, ok := c.jobs[connID]
	c.mu.Unlock()

	if !ok {
		return
	}

	c.logger.Info("Connection closed with running job, cancelling", "conn_id", connID)
	job.cancel(causeDisconnect)
}

// CancelAll terminates every outstanding job and waits up to timeout for
// their backends to exit. Used on process shutdown.
func (c *Controller) CancelAll(timeout time.Duration) error {
	c.mu.Lock()
	jobs := make([]*Job, 0, len(c.jobs))
	for _, job := range c.jobs {
		jobs = append(jobs, job)
	}
	c.mu.Unlock()

	for _, job := range jobs {
		job.cancel(causeDisconnect)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"scanjob", "CancelAll", "wait for job teardown")
	}
}

// ActiveJob returns the connection's active job, if any.
func (c *Controller) ActiveJob(connID string) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[connID]
	return job, ok
}

// ActiveCount returns the number of jobs in the registry.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// onJobDone removes a finished job from the registry, schedules file cleanup
// for delivered scans, and records metrics. The slot is freed only here,
// after the backend has confirmably exited.
func (c *Controller) onJobDone(job *Job, final State) {
	c.mu.Lock()
	if current, ok := c.jobs[job.connID]; ok && current == job {
		delete(c.jobs, job.connID)
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.jobsActive.Dec()
		c.metrics.jobsTotal.WithLabelValues(final.String()).Inc()
		c.metrics.jobDuration.Observe(time.Since(job.startedAt).Seconds())
	}

	if final == StateCompleted && job.outputFile != "" {
		c.cleaner.Schedule(job.outputFile)
	}

	c.logger.Info("Scan job finished",
		"conn_id", job.connID,
		"state", final.String(),
		"duration", time.Since(job.startedAt))
}
