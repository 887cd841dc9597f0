package classify

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vthunder/acuity/internal/types"
)

type fakeClassifier struct {
	reply string
	err   error
	block bool
	calls atomic.Int32
	last  Request
}

func (f *fakeClassifier) Classify(ctx context.Context, req Request) (string, error) {
	f.calls.Add(1)
	f.last = req
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func screenshot(at time.Time, hints ...string) types.ScreenshotSet {
	return types.ScreenshotSet{
		TakenAt:   at,
		Images:    []types.Image{{MIME: "image/png", Data: []byte("png")}},
		Processes: hints,
	}
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestBlankTaskSkipsClassifier(t *testing.T) {
	for _, task := range []string{"", "   ", "\n\t"} {
		fc := &fakeClassifier{reply: `{"on": 1, "activity": "x"}`}
		p := NewPipeline(fc, time.Second)
		obs := p.Run(context.Background(), task, []types.ScreenshotSet{screenshot(t0)})

		if fc.calls.Load() != 0 {
			t.Errorf("classifier called for task %q", task)
		}
		if obs.OnTask != types.OnTaskUnknown || obs.Activity != NoTaskActivity {
			t.Errorf("unexpected observation %+v", obs)
		}
		if obs.IsError() {
			t.Error("no-task observation must not be error-class")
		}
	}
}

func TestOnTaskReply(t *testing.T) {
	fc := &fakeClassifier{reply: `{"on": 1, "activity": "Editing main.go"}`}
	p := NewPipeline(fc, time.Second)
	obs := p.Run(context.Background(), "write code", []types.ScreenshotSet{screenshot(t0)})

	if obs.OnTask != types.OnTaskTrue || obs.Activity != "Editing main.go" || obs.IsError() {
		t.Errorf("unexpected observation %+v", obs)
	}
	if obs.Task != "write code" {
		t.Errorf("task not snapshotted: %q", obs.Task)
	}
	if !obs.Timestamp.Equal(t0) {
		t.Errorf("timestamp should be capture time, got %v", obs.Timestamp)
	}
	if obs.ID == "" {
		t.Error("observation id not set")
	}
}

func TestBatchConcatenatesImagesAndHints(t *testing.T) {
	fc := &fakeClassifier{reply: `{"on": 0, "activity": "Browsing Reddit"}`}
	p := NewPipeline(fc, time.Second)
	sets := []types.ScreenshotSet{
		screenshot(t0, "firefox", "Code"),
		screenshot(t0.Add(time.Second), "firefox"),
		screenshot(t0.Add(2*time.Second), "Slack"),
	}
	obs := p.Run(context.Background(), "write code", sets)

	if len(fc.last.Images) != 3 {
		t.Errorf("expected 3 images, got %d", len(fc.last.Images))
	}
	if !reflect.DeepEqual(fc.last.Hints, []string{"firefox", "Code", "Slack"}) {
		t.Errorf("unexpected hints %v", fc.last.Hints)
	}
	if !obs.Timestamp.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("expected latest capture time, got %v", obs.Timestamp)
	}
	if obs.OnTask != types.OnTaskFalse || obs.IsError() {
		t.Errorf("expected genuine off-task observation, got %+v", obs)
	}
}

func TestParseFailureIsErrorClass(t *testing.T) {
	fc := &fakeClassifier{reply: "I'm not sure what I'm looking at."}
	p := NewPipeline(fc, time.Second)
	obs := p.Run(context.Background(), "write code", []types.ScreenshotSet{screenshot(t0)})

	if obs.OnTask != types.OnTaskFalse || obs.Activity != ParseFailureActivity || obs.Fault != types.FaultParse {
		t.Errorf("unexpected observation %+v", obs)
	}
}

func TestTransportFailureIsErrorClass(t *testing.T) {
	fc := &fakeClassifier{err: errors.New("connection refused")}
	p := NewPipeline(fc, time.Second)
	obs := p.Run(context.Background(), "write code", []types.ScreenshotSet{screenshot(t0)})

	if obs.Fault != types.FaultTransport || obs.OnTask != types.OnTaskFalse {
		t.Errorf("unexpected observation %+v", obs)
	}
	if obs.Activity != "API error: connection refused" {
		t.Errorf("unexpected activity %q", obs.Activity)
	}
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	fc := &fakeClassifier{block: true}
	p := NewPipeline(fc, 20*time.Millisecond)

	start := time.Now()
	obs := p.Run(context.Background(), "write code", []types.ScreenshotSet{screenshot(t0)})
	if time.Since(start) > 2*time.Second {
		t.Fatal("pipeline did not bound the classifier call")
	}
	if obs.Fault != types.FaultTransport || obs.Activity != TimeoutActivity {
		t.Errorf("unexpected observation %+v", obs)
	}
}

func TestNilClassifier(t *testing.T) {
	p := NewPipeline(nil, time.Second)
	obs := p.Run(context.Background(), "write code", []types.ScreenshotSet{screenshot(t0)})
	if obs.Fault != types.FaultTransport || obs.Activity != NotConfiguredActivity {
		t.Errorf("unexpected observation %+v", obs)
	}
}

func TestTimestampFallsBackToClock(t *testing.T) {
	p := NewPipeline(nil, time.Second)
	p.SetClock(func() time.Time { return t0 })
	obs := p.Run(context.Background(), "", nil)
	if !obs.Timestamp.Equal(t0) {
		t.Errorf("expected clock time, got %v", obs.Timestamp)
	}
}

// Unknown iff the task was blank, across every classifier outcome
func TestTriStateIntegrity(t *testing.T) {
	classifiers := []Classifier{
		&fakeClassifier{reply: `{"on": 1, "activity": "a"}`},
		&fakeClassifier{reply: `{"on": 0, "activity": "b"}`},
		&fakeClassifier{reply: `nonsense`},
		&fakeClassifier{err: errors.New("boom")},
		nil,
	}
	for i, c := range classifiers {
		p := NewPipeline(c, time.Second)
		for _, task := range []string{"", " ", "write code"} {
			obs := p.Run(context.Background(), task, []types.ScreenshotSet{screenshot(t0)})
			if (obs.OnTask == types.OnTaskUnknown) != !types.HasTask(task) {
				t.Errorf("classifier %d task %q: on_task=%v", i, task, obs.OnTask)
			}
		}
	}
}
