package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/types"
)

// ErrNoImages is returned when the capture command ran but produced nothing
var ErrNoImages = errors.New("capture produced no images")

// Service returns the current display state as one screenshot set
type Service interface {
	Capture(ctx context.Context) (types.ScreenshotSet, error)
}

// Hinter supplies optional text context (e.g. busy processes) for a capture
type Hinter interface {
	Hints(ctx context.Context) ([]string, error)
}

// DefaultCommand returns a screenshot command for the current OS. Placeholders:
// {dir} is a fresh temp directory, {out} is {dir}/screen.png.
func DefaultCommand() []string {
	switch runtime.GOOS {
	case "darwin":
		// One file per display; extra displays get numbered names
		return []string{"screencapture", "-x", "-t", "png", "{dir}/screen-1.png", "{dir}/screen-2.png", "{dir}/screen-3.png"}
	case "windows":
		return []string{"powershell", "-NoProfile", "-Command",
			"Add-Type -AssemblyName System.Windows.Forms,System.Drawing; " +
				"$b=[System.Windows.Forms.SystemInformation]::VirtualScreen; " +
				"$i=New-Object System.Drawing.Bitmap $b.Width,$b.Height; " +
				"$g=[System.Drawing.Graphics]::FromImage($i); " +
				"$g.CopyFromScreen($b.Left,$b.Top,0,0,$i.Size); " +
				"$i.Save('{out}')"}
	default:
		return []string{"grim", "{out}"}
	}
}

// CommandCapturer takes screenshots by running an external tool
type CommandCapturer struct {
	command []string
	timeout time.Duration
	hinter  Hinter
	now     func() time.Time
}

// NewCommandCapturer creates a capturer. An empty command uses DefaultCommand.
func NewCommandCapturer(command []string, timeout time.Duration, hinter Hinter) *CommandCapturer {
	if len(command) == 0 {
		command = DefaultCommand()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CommandCapturer{
		command: command,
		timeout: timeout,
		hinter:  hinter,
		now:     time.Now,
	}
}

// Capture runs the command in a scratch directory and reads every PNG it wrote
func (c *CommandCapturer) Capture(ctx context.Context) (types.ScreenshotSet, error) {
	dir, err := os.MkdirTemp("", "acuity-capture-")
	if err != nil {
		return types.ScreenshotSet{}, fmt.Errorf("create capture dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := expand(c.command, dir)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	takenAt := c.now()
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	// Children of a killed shell can hold the output pipe open
	cmd.WaitDelay = time.Second
	if out, err := cmd.CombinedOutput(); err != nil {
		return types.ScreenshotSet{}, fmt.Errorf("%s: %w (%s)", args[0], err, logging.Truncate(string(out), 200))
	}

	images, err := readImages(dir)
	if err != nil {
		return types.ScreenshotSet{}, err
	}

	set := types.ScreenshotSet{TakenAt: takenAt, Images: images}
	if c.hinter != nil {
		hints, err := c.hinter.Hints(ctx)
		if err != nil {
			logging.Debug("capture", "Process hints unavailable: %v", err)
		} else {
			set.Processes = hints
		}
	}
	logging.Debug("capture", "Captured %d screen(s)", len(images))
	return set, nil
}

func expand(command []string, dir string) []string {
	out := filepath.Join(dir, "screen.png")
	args := make([]string, len(command))
	for i, a := range command {
		a = strings.ReplaceAll(a, "{out}", out)
		a = strings.ReplaceAll(a, "{dir}", dir)
		args[i] = a
	}
	return args
}

// readImages loads PNGs in name order so display order is stable
func readImages(dir string) ([]types.Image, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	sort.Strings(paths)

	var images []types.Image
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read capture: %w", err)
		}
		if len(data) == 0 {
			continue
		}
		images = append(images, types.Image{MIME: "image/png", Data: data})
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	return images, nil
}
