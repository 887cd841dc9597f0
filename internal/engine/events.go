package engine

import (
	"time"

	"github.com/vthunder/acuity/internal/escalation"
	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/types"
)

// EventKind names what an Event carries
type EventKind string

const (
	EventObservation   EventKind = "observation"
	EventEscalation    EventKind = "escalation"
	EventTaskCompleted EventKind = "task_completed"
)

// Event is one item on the engine's outbound stream. Exactly one of the
// pointer fields is set, matching Kind.
type Event struct {
	Kind        EventKind              `json:"kind"`
	At          time.Time              `json:"at"`
	Observation *types.Observation     `json:"observation,omitempty"`
	Escalation  *escalation.Transition `json:"escalation,omitempty"`
	Completed   *types.CompletedTask   `json:"completed,omitempty"`
}

// Subscribe returns a channel of engine events and a cancel func that
// unsubscribes and closes the channel. A subscriber that falls more than
// buffer events behind loses events rather than stalling capture.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publishLocked fans an event out to subscribers. Callers hold e.mu, which
// keeps each cycle's events contiguous and in order.
func (e *Engine) publishLocked(ev Event) {
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			logging.Warn("engine", "Subscriber %d is behind, dropping %s event", id, ev.Kind)
		}
	}
}

func (e *Engine) publishTransitionLocked(tr escalation.Transition) {
	logging.Info("engine", "Escalation %s -> %s (count=%d): %s", tr.From, tr.To, tr.Count, logging.Truncate(tr.Detail, 80))
	e.publishLocked(Event{Kind: EventEscalation, At: tr.At, Escalation: &tr})
}
