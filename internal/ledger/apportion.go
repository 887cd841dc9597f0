package ledger

import (
	"math"

	"github.com/vthunder/acuity/internal/types"
)

// Split is a focused/distracted breakdown of a task's elapsed time
type Split struct {
	Total        int   `json:"total"`    // evaluated observations for the task
	OnCount      int   `json:"on_count"` // of which on task
	FocusedMs    int64 `json:"focused_ms"`
	DistractedMs int64 `json:"distracted_ms"`
}

// Apportion divides elapsedMs between focused and distracted time using the
// observations recorded for task.
//
// This is sampling-based: every evaluated observation is treated as an equal
// slice of the elapsed time. When capture cadence varies (mode changes, dropped
// ticks, classifier latency) the split is approximate. Error-class observations
// count as evaluated off-task samples, since their OnTask is false. Rounding is
// applied to each share independently, so the two may differ from elapsedMs by
// a millisecond or so; that drift is left as is.
func Apportion(task string, elapsedMs int64, history []types.Observation) Split {
	var s Split
	for _, obs := range history {
		if obs.Task != task || !obs.OnTask.Known() {
			continue
		}
		s.Total++
		if obs.OnTask == types.OnTaskTrue {
			s.OnCount++
		}
	}

	if s.Total == 0 {
		// No evidence of distraction
		s.FocusedMs = elapsedMs
		return s
	}

	offCount := s.Total - s.OnCount
	s.FocusedMs = int64(math.Round(float64(elapsedMs) * float64(s.OnCount) / float64(s.Total)))
	s.DistractedMs = int64(math.Round(float64(elapsedMs) * float64(offCount) / float64(s.Total)))
	return s
}
