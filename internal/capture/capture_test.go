package capture

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"
)

type fakeHinter struct {
	hints []string
	err   error
}

func (f fakeHinter) Hints(ctx context.Context) ([]string, error) {
	return f.hints, f.err
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based capture tests need sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCaptureReadsEveryDisplay(t *testing.T) {
	requireShell(t)
	c := NewCommandCapturer([]string{"sh", "-c", "printf one > {dir}/b.png; printf two > {dir}/a.png; printf x > {dir}/notes.txt"},
		time.Second, fakeHinter{hints: []string{"Code", "firefox"}})

	set, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(set.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(set.Images))
	}
	if string(set.Images[0].Data) != "two" || string(set.Images[1].Data) != "one" {
		t.Errorf("images not in name order: %q %q", set.Images[0].Data, set.Images[1].Data)
	}
	if set.Images[0].MIME != "image/png" {
		t.Errorf("unexpected mime %q", set.Images[0].MIME)
	}
	if !reflect.DeepEqual(set.Processes, []string{"Code", "firefox"}) {
		t.Errorf("unexpected hints %v", set.Processes)
	}
	if set.TakenAt.IsZero() {
		t.Error("TakenAt not set")
	}
}

func TestCaptureOutPlaceholder(t *testing.T) {
	requireShell(t)
	c := NewCommandCapturer([]string{"sh", "-c", "printf img > {out}"}, time.Second, nil)
	set, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(set.Images) != 1 || string(set.Images[0].Data) != "img" {
		t.Errorf("unexpected images %+v", set.Images)
	}
}

func TestCaptureCommandFailure(t *testing.T) {
	requireShell(t)
	c := NewCommandCapturer([]string{"sh", "-c", "echo denied >&2; exit 3"}, time.Second, nil)
	if _, err := c.Capture(context.Background()); err == nil {
		t.Fatal("expected error from failing command")
	}
}

func TestCaptureNoImages(t *testing.T) {
	requireShell(t)
	c := NewCommandCapturer([]string{"sh", "-c", "true"}, time.Second, nil)
	_, err := c.Capture(context.Background())
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
}

func TestCaptureHintFailureIsIgnored(t *testing.T) {
	requireShell(t)
	c := NewCommandCapturer([]string{"sh", "-c", "printf img > {out}"}, time.Second, fakeHinter{err: errors.New("denied")})
	set, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("hint failure should not fail capture: %v", err)
	}
	if len(set.Processes) != 0 {
		t.Errorf("expected no hints, got %v", set.Processes)
	}
}

func TestCaptureTimeout(t *testing.T) {
	requireShell(t)
	c := NewCommandCapturer([]string{"sh", "-c", "sleep 5"}, 50*time.Millisecond, nil)
	start := time.Now()
	if _, err := c.Capture(context.Background()); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("capture did not honour its timeout")
	}
}

func TestTopNames(t *testing.T) {
	usage := map[string]float64{"Code": 40, "Slack": 5, "firefox": 40, "zsh": 0.1}
	got := topNames(usage, 3)
	want := []string{"Code", "firefox", "Slack"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("topNames = %v, want %v", got, want)
	}
}

func TestDefaultCommandHasPlaceholder(t *testing.T) {
	cmd := DefaultCommand()
	if len(cmd) == 0 {
		t.Fatal("empty default command")
	}
	found := false
	for _, a := range expand(cmd, "/tmp/x") {
		if strings.Contains(a, "/tmp/x/") {
			found = true
		}
	}
	if !found {
		t.Errorf("default command never writes into the capture dir: %v", cmd)
	}
}
