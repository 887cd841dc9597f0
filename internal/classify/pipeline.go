package classify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/types"
)

// Activity strings for observations the classifier did not judge
const (
	NoTaskActivity        = "No task specified"
	NotConfiguredActivity = "Classifier not configured"
	ParseFailureActivity  = "Could not parse response"
	TimeoutActivity       = "API error: classifier timed out"
	transportPrefix       = "API error: "
)

// ErrNotConfigured is reported when no classifier was wired in
var ErrNotConfigured = errors.New("classifier not configured")

// DefaultTimeout bounds a single classifier call
const DefaultTimeout = 30 * time.Second

// Pipeline turns screenshot sets plus the current task into one Observation
type Pipeline struct {
	classifier Classifier
	timeout    time.Duration
	now        func() time.Time
}

// NewPipeline creates a pipeline. A nil classifier yields transport-fault
// observations whenever a task is set.
func NewPipeline(classifier Classifier, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pipeline{
		classifier: classifier,
		timeout:    timeout,
		now:        time.Now,
	}
}

// SetClock replaces the fallback time source for observations
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Timeout returns the per-call classifier deadline
func (p *Pipeline) Timeout() time.Duration {
	return p.timeout
}

// Run classifies a batch. It never returns an error: every failure becomes an
// error-class observation so the caller's loop keeps going.
func (p *Pipeline) Run(ctx context.Context, task string, sets []types.ScreenshotSet) types.Observation {
	obs := types.Observation{
		ID:        uuid.NewString(),
		Timestamp: p.captureTime(sets),
		Task:      task,
	}

	if !types.HasTask(task) {
		obs.OnTask = types.OnTaskUnknown
		obs.Activity = NoTaskActivity
		return obs
	}

	if p.classifier == nil {
		return p.fault(obs, types.FaultTransport, NotConfiguredActivity, ErrNotConfigured)
	}

	req := Request{Task: strings.TrimSpace(task)}
	seen := make(map[string]bool)
	for _, set := range sets {
		req.Images = append(req.Images, set.Images...)
		for _, h := range set.Processes {
			if !seen[h] {
				seen[h] = true
				req.Hints = append(req.Hints, h)
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.classifier.Classify(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return p.fault(obs, types.FaultTransport, TimeoutActivity, err)
		}
		return p.fault(obs, types.FaultTransport, transportPrefix+err.Error(), err)
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		logging.Debug("classify", "Unparseable reply: %s", logging.Truncate(raw, 200))
		return p.fault(obs, types.FaultParse, ParseFailureActivity, err)
	}

	obs.OnTask = types.OnTaskFromBool(verdict.OnTask)
	obs.Activity = verdict.Activity
	return obs
}

// fault builds an error-class observation. OnTask is false for compatibility
// with consumers that only read the flag; Fault tells escalation to ignore it.
func (p *Pipeline) fault(obs types.Observation, kind types.Fault, activity string, err error) types.Observation {
	logging.Info("classify", "Classifier %s failure: %v", kind, err)
	obs.OnTask = types.OnTaskFalse
	obs.Activity = activity
	obs.Fault = kind
	return obs
}

// captureTime is the instant of the most recent capture in the batch
func (p *Pipeline) captureTime(sets []types.ScreenshotSet) time.Time {
	var latest time.Time
	for _, s := range sets {
		if s.TakenAt.After(latest) {
			latest = s.TakenAt
		}
	}
	if latest.IsZero() {
		return p.now()
	}
	return latest
}
