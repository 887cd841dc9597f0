package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/vthunder/acuity/internal/types"
)

// Range selects a window of history relative to now
type Range string

const (
	RangeToday Range = "today"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
	RangeAll   Range = "all"
)

// ParseRange accepts today, week, month, all; empty means all
func ParseRange(s string) (Range, error) {
	switch Range(s) {
	case "":
		return RangeAll, nil
	case RangeToday, RangeWeek, RangeMonth, RangeAll:
		return Range(s), nil
	}
	return "", fmt.Errorf("unknown range %q (want today, week, month or all)", s)
}

// Start returns the earliest instant included in the range
func (r Range) Start(now time.Time) time.Time {
	switch r {
	case RangeToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case RangeWeek:
		return now.AddDate(0, 0, -7)
	case RangeMonth:
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

// History is the append-only observation log. Readers get copies, so a
// snapshot never tears while the pipeline appends.
type History struct {
	mu      sync.RWMutex
	entries []types.Observation
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{}
}

// Append adds an observation at the end
func (h *History) Append(obs types.Observation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, obs)
}

// Len returns the number of observations
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Snapshot returns a copy of all observations in capture order
func (h *History) Snapshot() []types.Observation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Observation, len(h.entries))
	copy(out, h.entries)
	return out
}

// Recent returns observations in the range, newest first, at most limit
// (limit <= 0 means no limit)
func (h *History) Recent(r Range, now time.Time, limit int) []types.Observation {
	start := r.Start(now)

	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []types.Observation
	for i := len(h.entries) - 1; i >= 0; i-- {
		e := h.entries[i]
		if e.Timestamp.Before(start) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
