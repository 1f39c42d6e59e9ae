package scanjob

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scanbridge/protocol"
)

// captureEmitter records events in emission order.
type captureEmitter struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (e *captureEmitter) Emit(ev protocol.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *captureEmitter) all() []protocol.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Event(nil), e.events...)
}

func (e *captureEmitter) types() []string {
	var out []string
	for _, ev := range e.all() {
		out = append(out, ev.EventType())
	}
	return out
}

func (e *captureEmitter) progressValues() []int {
	var out []int
	for _, ev := range e.all() {
		if p, ok := ev.(protocol.ProgressEvent); ok {
			out = append(out, p.Progress)
		}
	}
	return out
}

func (e *captureEmitter) terminalCount() int {
	count := 0
	for _, ev := range e.all() {
		switch ev.EventType() {
		case protocol.EventScanned, protocol.EventError, protocol.EventCancelled:
			count++
		}
	}
	return count
}

func waitDone(t *testing.T, j *Job) {
	t.Helper()
	select {
	case <-j.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for job to finish")
	}
}

func runSimJob(t *testing.T, stepDelay time.Duration) (*captureEmitter, *Job) {
	t.Helper()
	emitter := &captureEmitter{}
	job := newJob("conn-1", normalizeSettings(nil), "", newSimulatedBackend(stepDelay), emitter)

	ctx, cancel := context.WithCancelCause(context.Background())
	job.cancel = cancel

	done := make(chan struct{})
	go job.run(ctx, func(*Job, State) { close(done) })
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for job")
	}
	return emitter, job
}

func TestSimulatedJobEmitsFullProgressLadder(t *testing.T) {
	emitter, job := runSimJob(t, time.Millisecond)

	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, emitter.progressValues())
	assert.Equal(t, StateCompleted, job.State())

	events := emitter.all()
	require.NotEmpty(t, events)

	// The terminal event is the last event and occurs exactly once.
	last := events[len(events)-1]
	scanned, ok := last.(protocol.ScannedEvent)
	require.True(t, ok, "last event should be scanned, got %s", last.EventType())
	assert.Equal(t, 1, emitter.terminalCount())

	assert.True(t, strings.HasPrefix(scanned.Image, "data:image/png;base64,"))
	assert.Equal(t, "test_scan.png", scanned.Filename)
}

func TestSimulatedJobCancelEmitsCancelledOnce(t *testing.T) {
	emitter := &captureEmitter{}
	job := newJob("conn-1", normalizeSettings(nil), "", newSimulatedBackend(time.Hour), emitter)

	ctx, cancel := context.WithCancelCause(context.Background())
	job.cancel = cancel

	done := make(chan struct{})
	go job.run(ctx, func(*Job, State) { close(done) })

	// Let the first progress step land, then cancel.
	require.Eventually(t, func() bool {
		return len(emitter.progressValues()) > 0
	}, 5*time.Second, 5*time.Millisecond)

	job.cancel(causeClientCancel)
	<-done

	assert.Equal(t, StateCancelled, job.State())
	assert.Equal(t, 1, emitter.terminalCount())
	types := emitter.types()
	assert.Equal(t, protocol.EventCancelled, types[len(types)-1])
}

func TestDisconnectCancelEmitsNothing(t *testing.T) {
	emitter := &captureEmitter{}
	job := newJob("conn-1", normalizeSettings(nil), "", newSimulatedBackend(time.Hour), emitter)

	ctx, cancel := context.WithCancelCause(context.Background())
	job.cancel = cancel

	done := make(chan struct{})
	go job.run(ctx, func(*Job, State) { close(done) })

	job.cancel(causeDisconnect)
	<-done

	assert.Equal(t, StateCancelled, job.State())
	assert.Equal(t, 0, emitter.terminalCount())
}

func TestReportProgressMonotonicAndClamped(t *testing.T) {
	emitter := &captureEmitter{}
	job := newJob("conn-1", normalizeSettings(nil), "", nil, emitter)
	job.state.Store(int32(StateRunning))

	for _, p := range []int{10, 5, 10, 50, -3, 200} {
		job.reportProgress(p)
	}

	assert.Equal(t, []int{10, 50, 100}, emitter.progressValues())
	assert.Equal(t, 100, job.Progress())
}

func TestNoProgressAfterTerminal(t *testing.T) {
	emitter := &captureEmitter{}
	job := newJob("conn-1", normalizeSettings(nil), "", nil, emitter)
	job.state.Store(int32(StateRunning))

	job.reportProgress(40)
	job.finish(StateFailed, protocol.NewError("boom"))
	job.reportProgress(80)

	assert.Equal(t, []int{40}, emitter.progressValues())
	assert.Equal(t, 1, emitter.terminalCount())
}

func TestFinishIsExactlyOnce(t *testing.T) {
	emitter := &captureEmitter{}
	job := newJob("conn-1", normalizeSettings(nil), "", nil, emitter)

	job.finish(StateFailed, protocol.NewError("first"))
	job.finish(StateCancelled, protocol.NewCancelled())

	assert.Equal(t, StateFailed, job.State())
	assert.Equal(t, 1, emitter.terminalCount())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "unknown", State(42).String())
}
