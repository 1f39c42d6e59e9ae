package scanjob

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/scanbridge/errors"
	"github.com/c360/scanbridge/protocol"
)

// State is the lifecycle state of a scan job.
type State int32

const (
	// StatePending indicates the job was accepted but has not started.
	StatePending State = iota
	// StateRunning indicates the backend is executing.
	StateRunning
	// StateCompleted indicates the scanned event was delivered.
	StateCompleted
	// StateFailed indicates the job ended with an error event.
	StateFailed
	// StateCancelled indicates the job was torn down by cancel or disconnect.
	StateCancelled
)

// String returns a string representation of the job state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Cancellation causes, used to pick the right terminal behavior: an explicit
// client cancel emits a cancelled event, a disconnect emits nothing.
var (
	causeClientCancel = stderrors.New("cancelled by client")
	causeDisconnect   = stderrors.New("connection closed")
)

// Emitter delivers protocol events to the connection that owns a job.
// Implementations must be safe for use from the job's goroutine.
type Emitter interface {
	Emit(event protocol.Event)
}

// result is what a backend produces on success.
type result struct {
	image    []byte // raw PNG bytes
	filename string
	path     string // on-disk output file, empty for the simulated backend
}

// backend executes a scan. It reports progress percentages through the
// callback and returns once the scan finished, failed, or ctx was cancelled.
// On cancellation the backend must not return until its subprocess (if any)
// has confirmably exited.
type backend interface {
	run(ctx context.Context, progress func(int)) (*result, error)
}

// Job is one scan request's full lifecycle from acceptance to terminal event.
type Job struct {
	connID     string
	settings   Settings
	outputFile string
	backend    backend
	emitter    Emitter

	cancel       context.CancelCauseFunc
	state        atomic.Int32
	lastProgress atomic.Int64 // -1 until the first progress event
	terminal     sync.Once
	done         chan struct{}
	startedAt    time.Time
}

func newJob(connID string, settings Settings, outputFile string, b backend, emitter Emitter) *Job {
	j := &Job{
		connID:     connID,
		settings:   settings,
		outputFile: outputFile,
		backend:    b,
		emitter:    emitter,
		done:       make(chan struct{}),
	}
	j.lastProgress.Store(-1)
	return j
}

// ConnID returns the owning connection id.
func (j *Job) ConnID() string { return j.connID }

// State returns the job's current lifecycle state.
func (j *Job) State() State { return State(j.state.Load()) }

// Progress returns the last reported progress percentage, or 0 before any
// progress was reported.
func (j *Job) Progress() int {
	p := j.lastProgress.Load()
	if p < 0 {
		return 0
	}
	return int(p)
}

// Done is closed once the job reached a terminal state and its backend has
// fully exited.
func (j *Job) Done() <-chan struct{} { return j.done }

// reportProgress forwards a progress value to the client, clamped to [0,100]
// and strictly monotonic: stale or duplicate values are dropped, and nothing
// is emitted once the job left the running state.
func (j *Job) reportProgress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	for {
		last := j.lastProgress.Load()
		if int64(p) <= last {
			return
		}
		if j.lastProgress.CompareAndSwap(last, int64(p)) {
			break
		}
	}

	if j.State() != StateRunning {
		return
	}
	j.emitter.Emit(protocol.NewProgress(p))
}

// run executes the backend and emits exactly one terminal event. onDone is
// invoked after the terminal event with the final state.
func (j *Job) run(ctx context.Context, onDone func(*Job, State)) {
	defer close(j.done)

	j.state.Store(int32(StateRunning))
	j.startedAt = time.Now()

	res, err := j.backend.run(ctx, j.reportProgress)

	var final State
	switch {
	case ctx.Err() != nil:
		cause := context.Cause(ctx)
		switch {
		case stderrors.Is(cause, errors.ErrJobTimeout):
			final = StateFailed
			j.finish(final, protocol.NewError("scan job timed out"))
		case stderrors.Is(cause, causeDisconnect):
			// No connection left to notify.
			final = StateCancelled
			j.finish(final, nil)
		default:
			final = StateCancelled
			j.finish(final, protocol.NewCancelled())
		}

	case err != nil:
		final = StateFailed
		j.finish(final, protocol.NewError(err.Error()))

	default:
		j.reportProgress(100)
		final = StateCompleted
		image := "data:image/png;base64," + base64.StdEncoding.EncodeToString(res.image)
		j.finish(final, protocol.NewScanned(image, res.filename))
	}

	onDone(j, final)
}

// finish records the terminal state and emits the terminal event, exactly
// once regardless of how many paths race to end the job.
func (j *Job) finish(s State, ev protocol.Event) {
	j.terminal.Do(func() {
		j.state.Store(int32(s))
		if ev != nil {
			j.emitter.Emit(ev)
		}
	})
}
