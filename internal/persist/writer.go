package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/types"
)

const (
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 10 * time.Second
)

type job struct {
	obs  *types.Observation
	task *types.CompletedTask
}

// WriterStats counts what happened to enqueued records
type WriterStats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Pending int   `json:"pending"`
}

// Writer is a bounded queue in front of a Backend. Enqueue never blocks the
// caller; a full queue drops the record with a log line. One worker drains
// the queue, each write under its own timeout.
type Writer struct {
	backend Backend
	timeout time.Duration
	queue   chan job

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewWriter starts a writer. size and timeout fall back to defaults when <= 0.
func NewWriter(backend Backend, size int, timeout time.Duration) *Writer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	w := &Writer{
		backend: backend,
		timeout: timeout,
		queue:   make(chan job, size),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// EnqueueObservation schedules an observation write
func (w *Writer) EnqueueObservation(obs types.Observation) {
	w.enqueue(job{obs: &obs}, "observation", obs.ID)
}

// EnqueueCompletedTask schedules a completed-task write
func (w *Writer) EnqueueCompletedTask(ct types.CompletedTask) {
	w.enqueue(job{task: &ct}, "completed task", ct.ID)
}

func (w *Writer) enqueue(j job, kind, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.dropped.Add(1)
		logging.Warn("persist", "Writer closed, dropping %s %s", kind, id)
		return
	}
	select {
	case w.queue <- j:
	default:
		w.dropped.Add(1)
		logging.Warn("persist", "Queue full, dropping %s %s", kind, id)
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for j := range w.queue {
		w.write(j)
	}
}

func (w *Writer) write(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	switch {
	case j.obs != nil:
		err = w.backend.AppendObservation(ctx, *j.obs)
		if err != nil {
			logging.Warn("persist", "Failed to write observation %s: %v", j.obs.ID, err)
		}
	case j.task != nil:
		err = w.backend.AppendCompletedTask(ctx, *j.task)
		if err != nil {
			logging.Warn("persist", "Failed to write completed task %s: %v", j.task.ID, err)
		}
	}
	if err != nil {
		w.failed.Add(1)
		return
	}
	w.written.Add(1)
}

// Stats returns counters for monitoring
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
		Pending: len(w.queue),
	}
}

// Close stops accepting records and waits up to deadline for the queue to
// drain. Returns false if the deadline passed first.
func (w *Writer) Close(deadline time.Duration) bool {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return true
	case <-time.After(deadline):
		logging.Warn("persist", "Close timed out with %d records pending", len(w.queue))
		return false
	}
}
