package types

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// OnTask is the tri-state verdict for an observation. The zero value is
// OnTaskUnknown so an unset field never reads as "off task".
type OnTask int

const (
	OnTaskUnknown OnTask = iota // classifier not consulted (no task declared)
	OnTaskTrue
	OnTaskFalse
)

// OnTaskFromBool converts a classifier judgment into the tri-state
func OnTaskFromBool(on bool) OnTask {
	if on {
		return OnTaskTrue
	}
	return OnTaskFalse
}

// Known reports whether the classifier evaluated this observation
func (o OnTask) Known() bool {
	return o == OnTaskTrue || o == OnTaskFalse
}

func (o OnTask) String() string {
	switch o {
	case OnTaskTrue:
		return "on"
	case OnTaskFalse:
		return "off"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes as true, false or null
func (o OnTask) MarshalJSON() ([]byte, error) {
	switch o {
	case OnTaskTrue:
		return []byte("true"), nil
	case OnTaskFalse:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false or null
func (o *OnTask) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*o = OnTaskTrue
	case "false":
		*o = OnTaskFalse
	case "null":
		*o = OnTaskUnknown
	default:
		return fmt.Errorf("invalid on_task value: %s", data)
	}
	return nil
}

// Fault marks an observation produced by a classifier failure rather than a
// real judgment. Escalation treats these as de-escalating.
type Fault string

const (
	FaultNone      Fault = ""
	FaultTransport Fault = "transport" // timeout, network, non-200
	FaultParse     Fault = "parse"     // reply not in the documented shape
)

// Observation is one classification result. Immutable once created.
type Observation struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Activity  string    `json:"activity"`
	OnTask    OnTask    `json:"on_task"`
	Task      string    `json:"task"`            // task in effect at capture time
	Fault     Fault     `json:"fault,omitempty"` // non-empty for error-class observations
}

// IsError reports whether this observation came from a classifier failure
func (o Observation) IsError() bool {
	return o.Fault != FaultNone
}

// HasTask reports whether a task was declared when the observation was taken
func HasTask(task string) bool {
	return strings.TrimSpace(task) != ""
}

// Level is the escalation intensity. Ordinal so consumers can scale visuals.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// MarshalText lets levels appear by name in JSON
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "normal":
		*l = LevelNormal
	case "warning":
		*l = LevelWarning
	case "critical":
		*l = LevelCritical
	default:
		return fmt.Errorf("unknown level %q", text)
	}
	return nil
}

// CompletionSource records how a task was marked done
type CompletionSource string

const (
	SourceHotkey CompletionSource = "hotkey"
	SourceManual CompletionSource = "manual"
	SourceTodo   CompletionSource = "todo"
	SourceAPI    CompletionSource = "api"
)

// CompletedTask is a closed ledger entry. Created once, never mutated.
type CompletedTask struct {
	ID           string           `json:"id"`
	Task         string           `json:"task"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  time.Time        `json:"completed_at"`
	DurationMs   *int64           `json:"duration_ms"` // nil when the task was not timed
	FocusedMs    int64            `json:"focused_ms"`
	DistractedMs int64            `json:"distracted_ms"`
	Source       CompletionSource `json:"source"`
}

// Image is one still capture of a display
type Image struct {
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// ScreenshotSet is everything captured in one tick: one image per display plus
// optional process hints for the classifier.
type ScreenshotSet struct {
	TakenAt   time.Time `json:"taken_at"`
	Images    []Image   `json:"images"`
	Processes []string  `json:"processes,omitempty"`
}
