// Package engine runs the focus monitoring session: it owns the current task
// and escalation state, drives capture-and-classify cycles, and publishes
// what happens to subscribers.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/acuity/internal/capture"
	"github.com/vthunder/acuity/internal/escalation"
	"github.com/vthunder/acuity/internal/ledger"
	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/persist"
	"github.com/vthunder/acuity/internal/schedule"
	"github.com/vthunder/acuity/internal/types"
)

// ErrNoTask is returned when completing without task text
var ErrNoTask = errors.New("no task specified")

const (
	DefaultFocusPeriod   = time.Second
	DefaultObservePeriod = 3 * time.Minute
)

// Analyzer turns a batch of screenshot sets into one observation.
// *classify.Pipeline is the production implementation.
type Analyzer interface {
	Run(ctx context.Context, task string, sets []types.ScreenshotSet) types.Observation
}

// ObservationSink receives observations for best-effort remote storage
type ObservationSink interface {
	EnqueueObservation(obs types.Observation)
}

// sinkStats is implemented by *persist.Writer
type sinkStats interface {
	Stats() persist.WriterStats
}

// Ticker drives cycles. *schedule.Scheduler is the production implementation.
type Ticker interface {
	Start(periodFn func() time.Duration)
	Stop()
	SetPeriod(d time.Duration)
	Stats() schedule.Stats
}

// Deps are the engine's collaborators
type Deps struct {
	Capture  capture.Service
	Analyzer Analyzer
	Ledger   *ledger.Ledger
	Sink     ObservationSink                  // optional
	Clock    func() time.Time                 // optional, defaults to time.Now
	Ticker   func(cycle schedule.Cycle) Ticker // optional, defaults to schedule.New
}

// Options are policy knobs
type Options struct {
	FocusPeriod   time.Duration // cadence while a task is set
	ObservePeriod time.Duration // cadence with no task
	BatchSize     int           // screenshot sets per classification
	Thresholds    escalation.Thresholds
}

// Mode is the capture cadence in effect
type Mode string

const (
	ModeFocus   Mode = "focus"
	ModeObserve Mode = "observe"
)

// Status is a point-in-time view of the engine
type Status struct {
	Tracking   bool                  `json:"tracking"`
	Task       string                `json:"task"`
	Mode       Mode                  `json:"mode"`
	StartedAt  *time.Time            `json:"started_at,omitempty"`
	Escalation escalation.State      `json:"escalation"`
	Thresholds escalation.Thresholds `json:"thresholds"`
	Scheduler  schedule.Stats        `json:"scheduler"`
	Persist    *persist.WriterStats  `json:"persist,omitempty"` // nil without a backend writer
	Pending    int                   `json:"pending_sets"`
	History    int                   `json:"history"`
	Completed  int                   `json:"completed"`
}

// Engine is the session state machine, Idle <-> Tracking
type Engine struct {
	capture  capture.Service
	analyzer Analyzer
	ledger   *ledger.Ledger
	sink     ObservationSink
	now      func() time.Time
	opts     Options
	machine  *escalation.Machine
	ticker   Ticker

	// cmdMu serializes commands so scheduler calls never run under mu
	cmdMu sync.Mutex

	mu        sync.Mutex
	tracking  bool
	task      string
	startedAt time.Time
	epoch     uint64 // bumped whenever a session ends or starts
	batch     []types.ScreenshotSet
	subs      map[int]chan Event
	nextSub   int
}

// New creates an idle engine
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Capture == nil {
		return nil, errors.New("engine: capture service is required")
	}
	if deps.Analyzer == nil {
		return nil, errors.New("engine: analyzer is required")
	}
	if opts.Thresholds == (escalation.Thresholds{}) {
		opts.Thresholds = escalation.DefaultThresholds()
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if opts.FocusPeriod <= 0 {
		opts.FocusPeriod = DefaultFocusPeriod
	}
	if opts.ObservePeriod <= 0 {
		opts.ObservePeriod = DefaultObservePeriod
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.New(nil, nil, nil)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	e := &Engine{
		capture:  deps.Capture,
		analyzer: deps.Analyzer,
		ledger:   deps.Ledger,
		sink:     deps.Sink,
		now:      deps.Clock,
		opts:     opts,
		machine:  escalation.New(opts.Thresholds),
		subs:     make(map[int]chan Event),
	}
	e.machine.SetClock(deps.Clock)
	if deps.Ticker != nil {
		e.ticker = deps.Ticker(e.cycle)
	} else {
		e.ticker = schedule.New(e.cycle)
	}
	return e, nil
}

// Ledger returns the task time ledger
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Start begins a tracking session. Returns false if one was already running.
func (e *Engine) Start() bool {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.mu.Lock()
	if e.tracking {
		e.mu.Unlock()
		return false
	}
	e.tracking = true
	e.epoch++
	e.batch = nil
	e.startedAt = e.now()
	if tr, ok := e.machine.Reset("tracking started"); ok {
		e.publishTransitionLocked(tr)
	}
	period := e.periodLocked()
	task := e.task
	e.mu.Unlock()

	e.ticker.Start(func() time.Duration { return period })
	logging.Info("engine", "Tracking started (task=%q, period=%v)", logging.Truncate(task, 60), period)
	return true
}

// Stop ends the session. An in-flight cycle is cancelled and its result
// discarded. Returns false if not tracking.
func (e *Engine) Stop() bool {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if !e.endSession("tracking stopped") {
		return false
	}
	e.ticker.Stop()
	logging.Info("engine", "Tracking stopped")
	return true
}

// endSession flips to Idle under mu. The caller stops the ticker afterwards,
// since a cycle may be waiting on mu to commit.
func (e *Engine) endSession(reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endSessionLocked(reason)
}

func (e *Engine) endSessionLocked(reason string) bool {
	if !e.tracking {
		return false
	}
	e.tracking = false
	e.epoch++
	e.batch = nil
	e.startedAt = time.Time{}
	if tr, ok := e.machine.Reset(reason); ok {
		e.publishTransitionLocked(tr)
	}
	return true
}

// SetTask replaces the current task; blank clears it. Takes effect on the
// next submission and never touches recorded observations.
func (e *Engine) SetTask(text string) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.setTask(text, "")
}

// ConfirmTask sets the task and resets the off-task count
func (e *Engine) ConfirmTask(text string) {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.setTask(text, "task confirmed")
}

func (e *Engine) setTask(text, resetReason string) {
	e.mu.Lock()
	prev := e.task
	e.task = strings.TrimSpace(text)
	modeChanged := types.HasTask(prev) != types.HasTask(e.task)
	if modeChanged {
		e.batch = nil
	}
	if resetReason != "" {
		if tr, ok := e.machine.Reset(resetReason); ok {
			e.publishTransitionLocked(tr)
		}
	}
	tracking, period, task := e.tracking, e.periodLocked(), e.task
	e.mu.Unlock()

	if prev != task {
		logging.Info("engine", "Task set to %q", logging.Truncate(task, 60))
	}
	if modeChanged && tracking {
		e.ticker.SetPeriod(period)
	}
}

// CompleteTask closes out text in the ledger. elapsed is nil for untimed
// tasks. Completing the current task ends the session before the time is
// split, so a cycle still in flight cannot add to the closed task.
func (e *Engine) CompleteTask(text string, elapsed *time.Duration, source types.CompletionSource) (types.CompletedTask, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.CompletedTask{}, ErrNoTask
	}
	var elapsedMs *int64
	if elapsed != nil {
		ms := elapsed.Milliseconds()
		if ms < 0 {
			return types.CompletedTask{}, ledger.ErrNegativeElapsed
		}
		elapsedMs = &ms
	}

	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.mu.Lock()
	var startedAt *time.Time
	ended := false
	if e.task == text {
		if e.tracking {
			s := e.startedAt
			startedAt = &s
		}
		ended = e.endSessionLocked("task completed")
		e.task = ""
	}
	e.mu.Unlock()

	if ended {
		e.ticker.Stop()
	}

	ct, err := e.ledger.Complete(ledger.CompleteRequest{
		Task:      text,
		ElapsedMs: elapsedMs,
		StartedAt: startedAt,
		Source:    source,
	})
	if err != nil {
		return types.CompletedTask{}, err
	}

	e.mu.Lock()
	e.publishLocked(Event{Kind: EventTaskCompleted, At: ct.CompletedAt, Completed: &ct})
	e.mu.Unlock()
	return ct, nil
}

// CompleteCurrent completes the current task, timing it from the start of
// the session when tracking.
func (e *Engine) CompleteCurrent(source types.CompletionSource) (types.CompletedTask, error) {
	e.mu.Lock()
	task := e.task
	var elapsed *time.Duration
	if e.tracking && !e.startedAt.IsZero() {
		d := e.now().Sub(e.startedAt)
		elapsed = &d
	}
	e.mu.Unlock()

	if !types.HasTask(task) {
		return types.CompletedTask{}, ErrNoTask
	}
	return e.CompleteTask(task, elapsed, source)
}

// Status returns a snapshot for display
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		Tracking:   e.tracking,
		Task:       e.task,
		Mode:       e.modeLocked(),
		Escalation: e.machine.State(),
		Pending:    len(e.batch),
	}
	if e.tracking {
		s := e.startedAt
		st.StartedAt = &s
	}
	e.mu.Unlock()

	st.Scheduler = e.ticker.Stats()
	st.Thresholds = e.machine.Thresholds()
	if ss, ok := e.sink.(sinkStats); ok {
		ps := ss.Stats()
		st.Persist = &ps
	}
	st.History = e.ledger.History().Len()
	st.Completed = len(e.ledger.Completed())
	return st
}

// History returns recorded observations, newest first
func (e *Engine) History(r ledger.Range, limit int) []types.Observation {
	return e.ledger.History().Recent(r, e.now(), limit)
}

// Report summarizes focus for task over the range (all tasks when blank)
func (e *Engine) Report(r ledger.Range, task string) ledger.Report {
	return ledger.Summarize(e.ledger.History().Recent(r, e.now(), 0), strings.TrimSpace(task))
}

// Completed returns completed tasks in the range, newest first
func (e *Engine) Completed(r ledger.Range) []types.CompletedTask {
	return e.ledger.CompletedIn(r)
}

// Close stops tracking and unsubscribes everyone
func (e *Engine) Close() {
	e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

func (e *Engine) modeLocked() Mode {
	if types.HasTask(e.task) {
		return ModeFocus
	}
	return ModeObserve
}

func (e *Engine) periodLocked() time.Duration {
	if e.modeLocked() == ModeFocus {
		return e.opts.FocusPeriod
	}
	return e.opts.ObservePeriod
}

// cycle is one capture -> classify -> escalate pass. The scheduler never runs
// two at once.
func (e *Engine) cycle(ctx context.Context) {
	e.mu.Lock()
	if !e.tracking {
		e.mu.Unlock()
		return
	}
	epoch := e.epoch
	e.mu.Unlock()

	set, err := e.capture.Capture(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn("engine", "Capture failed, skipping cycle: %v", err)
		}
		return
	}

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return
	}
	e.batch = append(e.batch, set)
	if len(e.batch) < e.opts.BatchSize {
		e.mu.Unlock()
		return
	}
	sets, task := e.batch, e.task
	e.batch = nil
	e.mu.Unlock()

	obs := e.analyzer.Run(ctx, task, sets)
	if ctx.Err() != nil {
		return
	}
	e.commit(epoch, obs)
}

// commit records an observation and its escalation effect, unless the
// session it belongs to has ended.
func (e *Engine) commit(epoch uint64, obs types.Observation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		logging.Debug("engine", "Discarding observation from ended session")
		return
	}

	e.ledger.Record(obs)
	if e.sink != nil {
		e.sink.EnqueueObservation(obs)
	}
	logging.Debug("engine", "Observation on_task=%s activity=%q", obs.OnTask, logging.Truncate(obs.Activity, 80))
	e.publishLocked(Event{Kind: EventObservation, At: obs.Timestamp, Observation: &obs})

	if tr, ok := e.machine.Observe(obs); ok {
		e.publishTransitionLocked(tr)
	}
}
