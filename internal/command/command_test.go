package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"jarvis/internal/jobs"
)

type fakeFX struct {
	mu    sync.Mutex
	calls []string
	err   error

	recorded chan time.Duration
}

func (f *fakeFX) call(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeFX) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFX) Open(_ context.Context, name string) error { return f.call("open %s", name) }
func (f *fakeFX) Close(_ context.Context, name string) error { return f.call("close %s", name) }
func (f *fakeFX) Focus(_ context.Context, name string) error { return f.call("focus %s", name) }
func (f *fakeFX) Minimize(_ context.Context, name string) error { return f.call("minimize %s", name) }
func (f *fakeFX) Maximize(_ context.Context, name string) error { return f.call("maximize %s", name) }
func (f *fakeFX) Type(_ context.Context, text string) error { return f.call("type %s", text) }
func (f *fakeFX) Press(_ context.Context, key string) error { return f.call("press %s", key) }
func (f *fakeFX) OpenURL(_ context.Context, u string) error { return f.call("url %s", u) }
func (f *fakeFX) OpenPath(_ context.Context, p string) error { return f.call("path %s", p) }
func (f *fakeFX) SetVolume(_ context.Context, v int) error { return f.call("volume %d", v) }
func (f *fakeFX) StepVolume(_ context.Context, d int) error { return f.call("step %d", d) }
func (f *fakeFX) Mute(_ context.Context, on bool) error { return f.call("mute %t", on) }
func (f *fakeFX) Screenshot(_ context.Context, p string) error { return f.call("screenshot %s", p) }
func (f *fakeFX) Cancel(context.Context) error { return f.call("cancel") }
func (f *fakeFX) Lock(context.Context) error { return f.call("lock") }

func (f *fakeFX) Record(ctx context.Context, p string, d time.Duration) error {
	f.call("record %s", p)
	if f.recorded != nil {
		f.recorded <- d
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeFX) Shutdown(_ context.Context, d time.Duration) error { return f.call("shutdown %s", d) }
func (f *fakeFX) Restart(_ context.Context, d time.Duration) error { return f.call("restart %s", d) }

func (f *fakeFX) Battery(context.Context) (Battery, error) {
	return Battery{Percent: 81.6, Charging: true}, nil
}
func (f *fakeFX) CPUPercent(context.Context) (float64, error) { return 12.4, nil }
func (f *fakeFX) Memory(context.Context) (Memory, error) {
	return Memory{Percent: 41.2, Total: 16_000_000_000}, nil
}
func (f *fakeFX) IPAddress(context.Context) (string, error) { return "192.168.1.20", nil }
func (f *fakeFX) OS(context.Context) (string, error) { return "linux 6.8, amd64", nil }

type fixture struct {
	fx     *fakeFX
	runner *jobs.Runner
	d      *Dispatcher
	base   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	fx := &fakeFX{}
	runner := jobs.NewRunner(nil, jobs.Options{})
	t.Cleanup(func() { runner.Shutdown(context.Background()) })

	opt := DefaultOptions()
	opt.BaseDir = base
	opt.OutputDir = filepath.Join(base, "out")
	opt.Now = func() time.Time { return time.Date(2026, 3, 9, 15, 4, 0, 0, time.Local) }
	opt.Pick = func(int) int { return 0 }

	d, err := NewDispatcher(DefaultRules(Effects{
		Apps: fx, Keyboard: fx, Opener: fx, Mixer: fx, Screen: fx, Power: fx, System: fx, Jobs: runner,
	}, opt))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return &fixture{fx: fx, runner: runner, d: d, base: base}
}

func (f *fixture) dispatch(t *testing.T, text string) Result {
	t.Helper()
	res, ok := f.d.Dispatch(context.Background(), text)
	if !ok {
		t.Fatalf("%q not handled", text)
	}
	return res
}

func TestRuleOrder(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		text string
		rule string
		args []string
	}{
		{"hello", "greeting", nil},
		{"good morning jarvis", "greeting", nil},
		{"how are you doing", "how-are-you", nil},
		{"tell me a joke", "joke", nil},
		{"type hello on notepad", "type-on-app", []string{"hello", "notepad"}},
		{"type hello", "type", []string{"hello"}},
		{"type meet me on monday", "type", []string{"meet me on monday"}},
		{"open app firefox", "open-app", []string{"firefox"}},
		{"close app slack", "close-app", []string{"slack"}},
		{"minimize window", "window", []string{"minimize", ""}},
		{"open browser", "browser", nil},
		{"search the web for go generics", "search", []string{"go generics", ""}},
		{"open youtube", "bookmark", []string{"youtube"}},
		{"open chatgpt", "bookmark", []string{"chatgpt"}},
		{"open the recycle bin", "trash", nil},
		{"create folder reports", "create-folder", []string{"reports"}},
		{"delete folder reports", "delete-folder", []string{"reports"}},
		{"delete file notes.txt", "delete-file", []string{"notes.txt"}},
		{"open file notes.txt", "open-file", []string{"notes.txt"}},
		{"find file report in documents", "find-file", []string{"report", "documents"}},
		{"play music from music", "play-folder", []string{"music"}},
		{"play the next song", "next-track", nil},
		{"previous track", "previous-track", nil},
		{"pause", "play-pause", nil},
		{"set volume to 150", "set-volume", []string{"", "150"}},
		{"unmute", "unmute", nil},
		{"mute", "mute", nil},
		{"volume up", "volume-up", nil},
		{"take a screenshot", "screenshot", nil},
		{"record screen for 30 seconds", "record-screen", []string{"30", "seconds"}},
		{"what time is it", "time", nil},
		{"what's the date", "date", nil},
		{"how much battery is left", "battery", nil},
		{"cpu usage", "cpu", nil},
		{"memory usage", "memory", nil},
		{"what is my ip address", "ip", nil},
		{"system info", "os", nil},
		{"cancel shutdown", "cancel-shutdown", nil},
		{"shut down the computer", "shutdown", nil},
		{"restart", "restart", nil},
		{"lock the screen", "lock", nil},
		{"open trash", "trash", nil},
		{"open my computer", "home", nil},
		{"joke", "joke", nil},
		{"delete file trash.txt", "delete-file", []string{"trash.txt"}},
		{"find file notes in home folder", "find-file", []string{"notes", "home folder"}},
		{"delete folder my computer backup", "delete-folder", []string{"my computer backup"}},
		{"create folder jokes", "create-folder", []string{"jokes"}},
	}

	for _, tt := range tests {
		rule, args, ok := f.d.Match(tt.text)
		if !ok {
			t.Errorf("%q: no match", tt.text)
			continue
		}
		if rule.Name != tt.rule {
			t.Errorf("%q: matched %s, want %s", tt.text, rule.Name, tt.rule)
			continue
		}
		if tt.args != nil && strings.Join(args, "|") != strings.Join(tt.args, "|") {
			t.Errorf("%q: args %q, want %q", tt.text, args, tt.args)
		}
	}
}

func TestUnmatched(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{
		"hello what is the capital of france",
		"how do volcanoes work",
		"what's the weather like",
		"display settings",
	} {
		if rule, _, ok := f.d.Match(text); ok {
			t.Errorf("%q matched %s", text, rule.Name)
		}
	}
}

func TestTypeScopedVersusBare(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "type hello on notepad")
	if res.Reply != "Typed 'hello' in notepad" {
		t.Fatalf("reply = %q", res.Reply)
	}
	if got := strings.Join(f.fx.Calls(), ","); got != "focus gedit,type hello" {
		t.Fatalf("calls = %s", got)
	}

	f.fx.calls = nil
	res = f.dispatch(t, "type hello")
	if res.Reply != "Typed 'hello'" {
		t.Fatalf("reply = %q", res.Reply)
	}
	if got := strings.Join(f.fx.Calls(), ","); got != "type hello" {
		t.Fatalf("calls = %s", got)
	}
}

func TestVolumeClamp(t *testing.T) {
	tests := []struct {
		text  string
		want  string
		reply string
	}{
		{"set volume to 150", "volume 100", "Volume set to 100%"},
		{"set volume to -10", "volume 0", "Volume set to 0%"},
		{"set volume to minus 10", "volume 0", "Volume set to 0%"},
		{"set the volume to 40 percent", "volume 40", "Volume set to 40%"},
		{"set volume to 99999999999999999999", "volume 100", "Volume set to 100%"},
	}
	for _, tt := range tests {
		f := newFixture(t)
		res := f.dispatch(t, tt.text)
		if calls := f.fx.Calls(); len(calls) != 1 || calls[0] != tt.want {
			t.Errorf("%q: calls %v, want %s", tt.text, calls, tt.want)
		}
		if res.Reply != tt.reply {
			t.Errorf("%q: reply %q", tt.text, res.Reply)
		}
	}
}

func TestFolderLifecycle(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.base, "reports")

	if res := f.dispatch(t, "create folder reports"); res.Reply != "Created folder reports" {
		t.Fatalf("create reply = %q", res.Reply)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("folder not created: %v", err)
	}

	if res := f.dispatch(t, "delete folder reports"); res.Reply != "Deleted folder reports" {
		t.Fatalf("delete reply = %q", res.Reply)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("folder still present: %v", err)
	}

	res := f.dispatch(t, "delete folder reports")
	if res.Reply != "Folder reports not found" || res.Err != nil {
		t.Fatalf("second delete = %+v", res)
	}
}

func TestDeleteFolderRefusesBase(t *testing.T) {
	f := newFixture(t)
	if res := f.dispatch(t, "delete folder ~"); res.Reply != "I won't delete that folder." {
		t.Fatalf("reply = %q", res.Reply)
	}
	if _, err := os.Stat(f.base); err != nil {
		t.Fatalf("base dir removed: %v", err)
	}
}

func TestFileNamesReachFileRules(t *testing.T) {
	f := newFixture(t)
	trash := filepath.Join(f.base, "trash.txt")
	os.WriteFile(trash, []byte("x"), 0o644)

	res := f.dispatch(t, "delete file trash.txt")
	if res.Rule != "delete-file" || res.Reply != "Deleted file trash.txt" {
		t.Fatalf("delete = %+v", res)
	}
	if _, err := os.Stat(trash); !os.IsNotExist(err) {
		t.Fatalf("trash.txt still present: %v", err)
	}

	res = f.dispatch(t, "create folder jokes")
	if res.Rule != "create-folder" {
		t.Fatalf("create = %+v", res)
	}
	if info, err := os.Stat(filepath.Join(f.base, "jokes")); err != nil || !info.IsDir() {
		t.Fatalf("jokes folder not created: %v", err)
	}
	if len(f.fx.calls) != 0 {
		t.Fatalf("unexpected effects %v", f.fx.calls)
	}
}

func TestDeleteStaysInsideBase(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()
	victim := filepath.Join(outside, "keep.txt")
	os.WriteFile(victim, []byte("x"), 0o644)

	tests := []struct {
		text  string
		reply string
	}{
		{"delete folder " + outside, "I won't delete that folder."},
		{"delete folder ../" + filepath.Base(outside), "I won't delete that folder."},
		{"delete folder /", "I won't delete that folder."},
		{"delete file " + victim, "I won't delete that file."},
	}
	for _, tt := range tests {
		if res := f.dispatch(t, tt.text); res.Reply != tt.reply || res.Err != nil {
			t.Errorf("%q = %+v", tt.text, res)
		}
	}
	if _, err := os.Stat(victim); err != nil {
		t.Fatalf("file outside base removed: %v", err)
	}
}

func TestFileOps(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.base, "notes.txt")
	os.WriteFile(path, []byte("x"), 0o644)

	if res := f.dispatch(t, "open file notes.txt"); res.Reply != "Opening file notes.txt" {
		t.Fatalf("open reply = %q", res.Reply)
	}
	if res := f.dispatch(t, "delete file notes.txt"); res.Reply != "Deleted file notes.txt" {
		t.Fatalf("delete reply = %q", res.Reply)
	}
	if res := f.dispatch(t, "delete file notes.txt"); res.Reply != "File notes.txt not found" {
		t.Fatalf("missing reply = %q", res.Reply)
	}
	if res := f.dispatch(t, "open file notes.txt"); res.Reply != "File notes.txt not found" {
		t.Fatalf("missing open reply = %q", res.Reply)
	}
}

func TestFindFile(t *testing.T) {
	f := newFixture(t)
	docs := filepath.Join(f.base, "docs")
	os.MkdirAll(docs, 0o755)
	for _, name := range []string{"b-report.txt", "notes.txt", "A-Report.pdf"} {
		os.WriteFile(filepath.Join(docs, name), nil, 0o644)
	}

	res := f.dispatch(t, "find file report in docs")
	if res.Reply != "Found 2 files; opening A-Report.pdf." {
		t.Fatalf("reply = %q", res.Reply)
	}
	if calls := f.fx.Calls(); len(calls) != 1 || calls[0] != "path "+filepath.Join(docs, "A-Report.pdf") {
		t.Fatalf("calls = %v", calls)
	}

	if res := f.dispatch(t, "find file budget in docs"); res.Reply != "No matching files found." {
		t.Fatalf("reply = %q", res.Reply)
	}
	if res := f.dispatch(t, "find file report in nowhere"); res.Reply != "Folder nowhere not found" {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestPlayFolder(t *testing.T) {
	f := newFixture(t)
	music := filepath.Join(f.base, "music")
	os.MkdirAll(music, 0o755)

	if res := f.dispatch(t, "play music from music"); res.Reply != "No mp3 files found." {
		t.Fatalf("reply = %q", res.Reply)
	}
	os.WriteFile(filepath.Join(music, "b.mp3"), nil, 0o644)
	os.WriteFile(filepath.Join(music, "a.mp3"), nil, 0o644)
	if res := f.dispatch(t, "play music from music"); res.Reply != "Playing a" {
		t.Fatalf("reply = %q", res.Reply)
	}
	if res := f.dispatch(t, "play music from jazz"); res.Reply != "Folder jazz not found" {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestRecordScreenReturnsImmediately(t *testing.T) {
	f := newFixture(t)
	f.fx.recorded = make(chan time.Duration, 1)

	start := time.Now()
	res := f.dispatch(t, "record screen")
	if took := time.Since(start); took > 500*time.Millisecond {
		t.Fatalf("dispatch blocked for %v", took)
	}
	if res.Reply != "Recording 10 seconds of screen." {
		t.Fatalf("reply = %q", res.Reply)
	}

	select {
	case d := <-f.fx.recorded:
		if d != 10*time.Second {
			t.Fatalf("duration = %v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("recording job never started")
	}

	active := f.runner.Active()
	if len(active) != 1 || active[0].Kind != "screen-record" {
		t.Fatalf("active = %+v", active)
	}
	if !strings.HasPrefix(active[0].Output, filepath.Join(f.base, "out", "recording_")) {
		t.Fatalf("output = %s", active[0].Output)
	}
}

func TestRecordScreenDuration(t *testing.T) {
	f := newFixture(t)
	f.fx.recorded = make(chan time.Duration, 1)

	if res := f.dispatch(t, "record screen for 2 minutes"); res.Reply != "Recording 2 minutes of screen." {
		t.Fatalf("reply = %q", res.Reply)
	}
	if d := <-f.fx.recorded; d != 2*time.Minute {
		t.Fatalf("duration = %v", d)
	}
}

func TestSystemReplies(t *testing.T) {
	f := newFixture(t)

	tests := map[string]string{
		"what time is it":   "The time is 3:04 PM",
		"what's the date":   "Today is Monday, March 9, 2026",
		"battery":           "Battery at 82% and charging",
		"cpu usage":         "CPU at 12%",
		"memory usage":      "RAM at 41% of 16 GB",
		"what's my ip":      "Your IP address is 192.168.1.20",
		"system info":       "linux 6.8, amd64",
		"lock the computer": "Locking workstation.",
	}
	for text, want := range tests {
		if res := f.dispatch(t, text); res.Reply != want {
			t.Errorf("%q: reply %q, want %q", text, res.Reply, want)
		}
	}
}

func TestPowerDelay(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(t, "shutdown")
	if !strings.Contains(res.Reply, "1 minute from now") {
		t.Fatalf("reply = %q", res.Reply)
	}
	if calls := f.fx.Calls(); calls[0] != "shutdown 1m0s" {
		t.Fatalf("calls = %v", calls)
	}

	if res := f.dispatch(t, "cancel the restart"); res.Reply != "Cancelled the pending shutdown." {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestEffectErrorStillHandled(t *testing.T) {
	f := newFixture(t)
	f.fx.err = errors.New("pactl: connection refused")

	res := f.dispatch(t, "mute")
	if res.Err == nil || res.Reply != "Sorry, that didn't work." {
		t.Fatalf("result = %+v", res)
	}

	res = f.dispatch(t, "open app firefox")
	if res.Reply != "I couldn't open firefox." {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestNewDispatcherRejectsBadRules(t *testing.T) {
	noop := func(context.Context, []string) (string, error) { return "", nil }

	if _, err := NewDispatcher([]Rule{{Name: "bad", Pattern: `(`, Handler: noop}}); err == nil {
		t.Error("expected compile error")
	}
	if _, err := NewDispatcher([]Rule{{Name: "a", Pattern: "a", Handler: noop}, {Name: "a", Pattern: "b", Handler: noop}}); err == nil {
		t.Error("expected duplicate error")
	}
	if _, err := NewDispatcher([]Rule{{Name: "nil", Pattern: "x"}}); err == nil {
		t.Error("expected missing handler error")
	}
}

func TestModes(t *testing.T) {
	noop := func(context.Context, []string) (string, error) { return "", nil }
	d, err := NewDispatcher([]Rule{
		{Name: "full", Mode: Full, Pattern: "stop", Handler: noop},
		{Name: "prefix", Mode: Prefix, Pattern: "open", Handler: noop},
		{Name: "contains", Mode: Contains, Pattern: "time", Handler: noop},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"stop":          "full",
		"stop now":      "",
		"open the door": "prefix",
		"opener":        "",
		"what time now": "contains",
		"sometimes":     "",
		"the time":      "contains",
	}
	for text, want := range tests {
		rule, _, ok := d.Match(text)
		if want == "" {
			if ok {
				t.Errorf("%q matched %s", text, rule.Name)
			}
			continue
		}
		if rule.Name != want {
			t.Errorf("%q matched %q, want %q", text, rule.Name, want)
		}
	}
}
