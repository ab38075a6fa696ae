// Package effects carries out commands on a Linux desktop by driving the
// usual command line tools (xdotool, wmctrl, pactl, ffmpeg, loginctl).
package effects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/browser"

	"jarvis/internal/audio"
)

var ErrNoTool = errors.New("no suitable tool installed")

// Exec runs external programs. Run waits for the program; Start leaves it
// running detached from the assistant.
type Exec interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	Start(name string, args ...string) error
	LookPath(name string) (string, error)
}

type osExec struct{}

func (osExec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func (osExec) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go cmd.Wait()
	return nil
}

func (osExec) LookPath(name string) (string, error) { return exec.LookPath(name) }

type Options struct {
	// Apps maps spoken names to executables, e.g. "browser" -> "firefox".
	Apps    map[string]string
	Display string
	Exec    Exec
}

type Desktop struct {
	apps    map[string]string
	display string
	x       Exec

	openURL  func(string) error
	openFile func(string) error
}

func NewDesktop(opt Options) *Desktop {
	if opt.Exec == nil {
		opt.Exec = osExec{}
	}
	if opt.Display == "" {
		opt.Display = os.Getenv("DISPLAY")
	}
	if opt.Display == "" {
		opt.Display = ":0"
	}
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return &Desktop{
		apps:     opt.Apps,
		display:  opt.Display,
		x:        opt.Exec,
		openURL:  browser.OpenURL,
		openFile: browser.OpenFile,
	}
}

func (d *Desktop) executable(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if exe, ok := d.apps[name]; ok {
		return exe
	}
	return strings.ReplaceAll(name, " ", "-")
}

func (d *Desktop) run(ctx context.Context, name string, args ...string) error {
	log.Debug("Running", "cmd", name, "args", args)
	_, err := d.x.Run(ctx, name, args...)
	return err
}

func (d *Desktop) Open(_ context.Context, name string) error {
	exe := d.executable(name)
	if _, err := d.x.LookPath(exe); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return d.x.Start(exe)
}

func (d *Desktop) Close(ctx context.Context, name string) error {
	if name == "" {
		return d.run(ctx, "wmctrl", "-c", ":ACTIVE:")
	}
	return d.run(ctx, "pkill", "-i", "-f", d.executable(name))
}

func (d *Desktop) Focus(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	return d.run(ctx, "wmctrl", "-x", "-a", d.executable(name))
}

func (d *Desktop) Minimize(ctx context.Context, name string) error {
	if name == "" {
		return d.run(ctx, "xdotool", "getactivewindow", "windowminimize")
	}
	return d.run(ctx, "xdotool", "search", "--onlyvisible", "--class", d.executable(name), "windowminimize", "%@")
}

func (d *Desktop) Maximize(ctx context.Context, name string) error {
	args := []string{"-r", ":ACTIVE:", "-b", "add,maximized_vert,maximized_horz"}
	if name != "" {
		args = []string{"-x", "-r", d.executable(name), "-b", "add,maximized_vert,maximized_horz"}
	}
	return d.run(ctx, "wmctrl", args...)
}

func (d *Desktop) Type(ctx context.Context, text string) error {
	return d.run(ctx, "xdotool", "type", "--delay", "20", "--", text)
}

func (d *Desktop) Press(ctx context.Context, key string) error {
	return d.run(ctx, "xdotool", "key", "--", key)
}

func (d *Desktop) OpenURL(_ context.Context, url string) error {
	return d.openURL(url)
}

func (d *Desktop) OpenPath(_ context.Context, path string) error {
	if strings.Contains(path, "://") {
		return d.openURL(path)
	}
	return d.openFile(path)
}

func (d *Desktop) SetVolume(ctx context.Context, percent int) error {
	return audio.SetSinkVolume(ctx, percent)
}

func (d *Desktop) StepVolume(ctx context.Context, delta int) error {
	return audio.StepSinkVolume(ctx, delta)
}

func (d *Desktop) Mute(ctx context.Context, on bool) error {
	return audio.MuteSink(ctx, on)
}

var screenshotTools = []struct {
	name string
	args func(path string) []string
}{
	{"gnome-screenshot", func(p string) []string { return []string{"-f", p} }},
	{"grim", func(p string) []string { return []string{p} }},
	{"scrot", func(p string) []string { return []string{"--overwrite", p} }},
	{"import", func(p string) []string { return []string{"-window", "root", p} }},
}

func (d *Desktop) Screenshot(ctx context.Context, path string) error {
	for _, t := range screenshotTools {
		if _, err := d.x.LookPath(t.name); err != nil {
			continue
		}
		return d.run(ctx, t.name, t.args(path)...)
	}
	return fmt.Errorf("screenshot: %w", ErrNoTool)
}

func (d *Desktop) Record(ctx context.Context, path string, dur time.Duration) error {
	if _, err := d.x.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("record: %w", ErrNoTool)
	}
	secs := fmt.Sprintf("%.0f", dur.Seconds())
	return d.run(ctx, "ffmpeg", "-y", "-loglevel", "error",
		"-f", "x11grab", "-framerate", "25", "-i", d.display,
		"-t", secs,
		"-c:v", "libx264", "-preset", "ultrafast", "-pix_fmt", "yuv420p",
		path)
}

// shutdownWhen renders delay as the time argument of shutdown(8), which
// counts whole minutes.
func shutdownWhen(delay time.Duration) string {
	if delay <= 0 {
		return "now"
	}
	mins := int((delay + time.Minute - 1) / time.Minute)
	return fmt.Sprintf("+%d", mins)
}

func (d *Desktop) Shutdown(ctx context.Context, delay time.Duration) error {
	return d.run(ctx, "shutdown", "-h", shutdownWhen(delay))
}

func (d *Desktop) Restart(ctx context.Context, delay time.Duration) error {
	return d.run(ctx, "shutdown", "-r", shutdownWhen(delay))
}

func (d *Desktop) Cancel(ctx context.Context) error {
	return d.run(ctx, "shutdown", "-c")
}

func (d *Desktop) Lock(ctx context.Context) error {
	return d.run(ctx, "loginctl", "lock-session")
}
