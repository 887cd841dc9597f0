// Package ledger keeps the observation history and closes out completed tasks
// with a focused/distracted time split.
package ledger

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/types"
)

var (
	// ErrEmptyTask is returned when completing a blank task
	ErrEmptyTask = errors.New("task text is required")
	// ErrNegativeElapsed is returned for a negative duration
	ErrNegativeElapsed = errors.New("elapsed time must not be negative")
)

// Sink receives completed tasks for best-effort remote delivery
type Sink interface {
	EnqueueCompletedTask(ct types.CompletedTask)
}

// CompleteRequest describes a task being marked done
type CompleteRequest struct {
	Task      string
	ElapsedMs *int64     // nil when the task was not timed
	StartedAt *time.Time // optional, recorded as-is
	Source    types.CompletionSource
}

// Ledger owns the observation history and the completed-task list
type Ledger struct {
	history *History
	cache   *Cache
	sink    Sink
	now     func() time.Time

	mu        sync.RWMutex
	completed []types.CompletedTask
}

// New creates a ledger. cache and sink may be nil.
func New(history *History, cache *Cache, sink Sink) *Ledger {
	if history == nil {
		history = NewHistory()
	}
	return &Ledger{
		history: history,
		cache:   cache,
		sink:    sink,
		now:     time.Now,
	}
}

// SetClock replaces the time source for completion timestamps
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Load restores completed tasks from the local cache
func (l *Ledger) Load() error {
	if l.cache == nil {
		return nil
	}
	tasks, err := l.cache.Load()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.completed = tasks
	l.mu.Unlock()
	logging.Info("ledger", "Loaded %d completed tasks from %s", len(tasks), l.cache.Path())
	return nil
}

// History returns the observation history
func (l *Ledger) History() *History {
	return l.history
}

// Record appends an observation to history
func (l *Ledger) Record(obs types.Observation) {
	l.history.Append(obs)
}

// Complete apportions the elapsed time, stores the record locally, then hands
// it to the remote sink. A local write failure is logged; the in-memory record
// still stands.
func (l *Ledger) Complete(req CompleteRequest) (types.CompletedTask, error) {
	task := strings.TrimSpace(req.Task)
	if task == "" {
		return types.CompletedTask{}, ErrEmptyTask
	}
	if req.ElapsedMs != nil && *req.ElapsedMs < 0 {
		return types.CompletedTask{}, ErrNegativeElapsed
	}
	if req.Source == "" {
		req.Source = types.SourceManual
	}

	ct := types.CompletedTask{
		ID:          uuid.NewString(),
		Task:        task,
		StartedAt:   req.StartedAt,
		CompletedAt: l.now(),
		Source:      req.Source,
	}
	if req.ElapsedMs != nil {
		elapsed := *req.ElapsedMs
		split := Apportion(task, elapsed, l.history.Snapshot())
		ct.DurationMs = &elapsed
		ct.FocusedMs = split.FocusedMs
		ct.DistractedMs = split.DistractedMs
	}

	l.mu.Lock()
	l.completed = append(l.completed, ct)
	l.mu.Unlock()

	if l.cache != nil {
		if err := l.cache.Append(ct); err != nil {
			logging.Warn("ledger", "Failed to cache completed task %s: %v", ct.ID, err)
		}
	}
	if l.sink != nil {
		l.sink.EnqueueCompletedTask(ct)
	}

	logging.Info("ledger", "Completed %q (focused=%dms distracted=%dms source=%s)",
		logging.Truncate(task, 60), ct.FocusedMs, ct.DistractedMs, ct.Source)
	return ct, nil
}

// Completed returns a copy of all completed tasks in completion order
func (l *Ledger) Completed() []types.CompletedTask {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.CompletedTask, len(l.completed))
	copy(out, l.completed)
	return out
}

// CompletedIn returns completed tasks in the range, newest first
func (l *Ledger) CompletedIn(r Range) []types.CompletedTask {
	start := r.Start(l.now())

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.CompletedTask
	for i := len(l.completed) - 1; i >= 0; i-- {
		if !l.completed[i].CompletedAt.Before(start) {
			out = append(out, l.completed[i])
		}
	}
	return out
}
