package scanjob

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Cleaner deletes temporary scan output files a fixed delay after delivery,
// giving slow clients time to finish downloading. Deletion is idempotent: a
// file that is already gone is not an error.
type Cleaner struct {
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewCleaner creates a cleanup scheduler with the given deletion delay.
func NewCleaner(delay time.Duration, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		delay:  delay,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arranges for path to be deleted after the configured delay.
// Scheduling the same path twice resets its timer. After Stop, paths are
// deleted immediately.
func (c *Cleaner) Schedule(path string) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.remove(path)
		return
	}

	if timer, ok := c.timers[path]; ok {
		timer.Stop()
	}
	c.timers[path] = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		delete(c.timers, path)
		c.mu.Unlock()
		c.remove(path)
	})
	c.mu.Unlock()
}

// Pending returns the number of files awaiting deletion.
func (c *Cleaner) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop cancels all timers and deletes every pending file immediately. The
// cleaner keeps accepting Schedule calls afterwards, deleting synchronously.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	c.stopped = true
	pending := make([]string, 0, len(c.timers))
	for path, timer := range c.timers {
		timer.Stop()
		pending = append(pending, path)
	}
	c.timers = make(map[string]*time.Timer)
	c.mu.Unlock()

	for _, path := range pending {
		c.remove(path)
	}
}

// remove deletes a file, treating a missing file as success.
func (c *Cleaner) remove(path string) {
	err := os.Remove(path)
	switch {
	case err == nil:
		c.logger.Debug("Removed scan output", "path", path)
	case errors.Is(err, fs.ErrNotExist):
		// Already gone.
	default:
		c.logger.Warn("Failed to remove scan output", "path", path, "error", err)
	}
}
