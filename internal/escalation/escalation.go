// Package escalation turns a stream of observations into escalation levels.
//
// Escalation is driven by consecutive off-task counts rather than elapsed time,
// so isolated misclassifications never alert. Error-class observations and
// on-task observations reset the count and de-escalate immediately; unknown
// observations (no task declared) are ignored entirely.
package escalation

import (
	"fmt"
	"sync"
	"time"

	"github.com/vthunder/acuity/internal/types"
)

// Thresholds are the consecutive off-task counts that trigger each level
type Thresholds struct {
	Warning  int `yaml:"warning_after" json:"warning_after"`
	Critical int `yaml:"critical_after" json:"critical_after"`
}

// DefaultThresholds raise the window after 3 misses and go fully red at 90
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 3, Critical: 90}
}

// Validate checks that Warning is reachable before Critical
func (t Thresholds) Validate() error {
	if t.Warning < 1 {
		return fmt.Errorf("warning threshold must be >= 1, got %d", t.Warning)
	}
	if t.Critical <= t.Warning {
		return fmt.Errorf("critical threshold (%d) must exceed warning threshold (%d)", t.Critical, t.Warning)
	}
	return nil
}

// State is a snapshot of the machine
type State struct {
	ConsecutiveOffTask int         `json:"consecutive_off_task"`
	Level              types.Level `json:"level"`
}

// Transition describes one level change
type Transition struct {
	From   types.Level `json:"from"`
	To     types.Level `json:"to"`
	Count  int         `json:"count"`  // consecutive off-task count after the change
	Detail string      `json:"detail"` // human readable reason
	At     time.Time   `json:"at"`
}

// Escalated reports whether the transition raised the level
func (t Transition) Escalated() bool {
	return t.To > t.From
}

// Machine is the Normal -> Warning -> Critical state machine
type Machine struct {
	mu         sync.Mutex
	thresholds Thresholds
	state      State
	now        func() time.Time
}

// New creates a machine in the Normal state
func New(thresholds Thresholds) *Machine {
	return &Machine{thresholds: thresholds, now: time.Now}
}

// SetClock replaces the time source used to stamp transitions
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Thresholds returns the configured thresholds
func (m *Machine) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// State returns the current counter and level
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe applies one observation. It returns the transition and true when
// the level changed.
func (m *Machine) Observe(obs types.Observation) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case obs.IsError():
		return m.resetLocked(fmt.Sprintf("classifier error (%s): %s", obs.Fault, obs.Activity))
	case obs.OnTask == types.OnTaskTrue:
		return m.resetLocked("back on task: " + obs.Activity)
	case obs.OnTask == types.OnTaskFalse:
		return m.offTaskLocked(obs)
	default:
		// Observe-only: recorded elsewhere, never counted.
		return Transition{}, false
	}
}

// Reset zeroes the counter and returns to Normal. The transition is reported
// only if the level actually changed.
func (m *Machine) Reset(reason string) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetLocked(reason)
}

func (m *Machine) resetLocked(reason string) (Transition, bool) {
	from := m.state.Level
	m.state = State{}
	if from == types.LevelNormal {
		return Transition{}, false
	}
	return Transition{
		From:   from,
		To:     types.LevelNormal,
		Count:  0,
		Detail: reason,
		At:     m.now(),
	}, true
}

func (m *Machine) offTaskLocked(obs types.Observation) (Transition, bool) {
	m.state.ConsecutiveOffTask++
	count := m.state.ConsecutiveOffTask
	from := m.state.Level

	var to types.Level
	switch {
	case from == types.LevelNormal && count >= m.thresholds.Warning:
		to = types.LevelWarning
	case from == types.LevelWarning && count >= m.thresholds.Critical:
		to = types.LevelCritical
	default:
		return Transition{}, false
	}

	m.state.Level = to
	return Transition{
		From:   from,
		To:     to,
		Count:  count,
		Detail: fmt.Sprintf("%d consecutive off-task checks: %s", count, obs.Activity),
		At:     m.now(),
	}, true
}
