package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vthunder/acuity/internal/logging"
)

// Cycle is one capture-and-classify pass. The context is cancelled when the
// scheduler stops.
type Cycle func(ctx context.Context)

// Stats counts what the scheduler has done since it was created
type Stats struct {
	Running bool          `json:"running"`
	Period  time.Duration `json:"period"`
	Ticks   int64         `json:"ticks"`
	Started int64         `json:"started"` // cycles actually run
	Dropped int64         `json:"dropped"` // ticks skipped because a cycle was in flight
}

// Scheduler fires a cycle immediately and then once per period. At most one
// cycle runs at a time; ticks that arrive while one is in flight are dropped.
type Scheduler struct {
	cycle Cycle

	mu       sync.Mutex
	running  bool
	period   time.Duration
	periodFn func() time.Duration
	cancel   context.CancelFunc
	periodCh chan time.Duration
	loopDone chan struct{}
	cycles   sync.WaitGroup

	inFlight atomic.Bool
	ticks    atomic.Int64
	started  atomic.Int64
	dropped  atomic.Int64
}

// New creates a stopped scheduler
func New(cycle Cycle) *Scheduler {
	return &Scheduler{cycle: cycle}
}

// Start begins ticking. The first cycle fires with no delay. Calling Start on a
// running scheduler does nothing.
func (s *Scheduler) Start(periodFn func() time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.periodFn = periodFn
	s.period = sanitize(periodFn())
	s.periodCh = make(chan time.Duration, 1)
	s.loopDone = make(chan struct{})
	period, periodCh, loopDone := s.period, s.periodCh, s.loopDone
	s.mu.Unlock()

	go s.loop(ctx, period, periodCh, loopDone)
	logging.Info("scheduler", "Started (period=%v)", period)
}

// Stop cancels pending ticks and the in-flight cycle, then waits for both to
// return. Safe to call when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, loopDone := s.cancel, s.loopDone
	s.mu.Unlock()

	cancel()
	<-loopDone
	s.cycles.Wait()
	logging.Info("scheduler", "Stopped")
}

// SetPeriod changes the interval for subsequent ticks and replaces the period
// function given to Start. The change is handed to the loop goroutine, which
// owns the timer.
func (s *Scheduler) SetPeriod(d time.Duration) {
	d = sanitize(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = d
	s.periodFn = func() time.Duration { return d }
	if !s.running {
		return
	}
	// Keep only the latest pending change
	select {
	case <-s.periodCh:
	default:
	}
	s.periodCh <- d
}

// Running reports whether the scheduler is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns counters for status output
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	running, period := s.running, s.period
	s.mu.Unlock()
	return Stats{
		Running: running,
		Period:  period,
		Ticks:   s.ticks.Load(),
		Started: s.started.Load(),
		Dropped: s.dropped.Load(),
	}
}

func (s *Scheduler) loop(ctx context.Context, period time.Duration, periodCh <-chan time.Duration, done chan<- struct{}) {
	defer close(done)

	s.tick(ctx)

	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-periodCh:
			period = d
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(period)
			logging.Debug("scheduler", "Period changed to %v", period)
		case <-timer.C:
			s.tick(ctx)
			period = s.nextPeriod()
			timer.Reset(period)
		}
	}
}

// nextPeriod consults the period function outside the lock, since it may call
// back into the owner of the scheduler.
func (s *Scheduler) nextPeriod() time.Duration {
	s.mu.Lock()
	fn := s.periodFn
	s.mu.Unlock()
	d := sanitize(fn())
	s.mu.Lock()
	s.period = d
	s.mu.Unlock()
	return d
}

// tick starts a cycle unless one is already running
func (s *Scheduler) tick(ctx context.Context) {
	s.ticks.Add(1)
	if ctx.Err() != nil {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		logging.Debug("scheduler", "Cycle still in flight, dropping tick")
		return
	}
	s.started.Add(1)
	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		defer s.inFlight.Store(false)
		defer func() {
			if r := recover(); r != nil {
				logging.Warn("scheduler", "Cycle panicked: %v", r)
			}
		}()
		s.cycle(ctx)
	}()
}

func sanitize(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}
