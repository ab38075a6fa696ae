package audio

import (
	"context"
	"strings"
	"sync"
	"testing"
)

const sinkInputs = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
Sink Input #57
	Volume: front-left: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "jarvis"
Sink Input #bogus
	Volume: 10%
`

type pactlRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (p *pactlRecorder) install(t *testing.T) {
	t.Helper()
	orig := runPactl
	runPactl = func(_ context.Context, args ...string) ([]byte, error) {
		p.mu.Lock()
		p.calls = append(p.calls, args)
		p.mu.Unlock()
		if len(args) > 0 && args[0] == "list" {
			return []byte(sinkInputs), nil
		}
		return nil, nil
	}
	t.Cleanup(func() { runPactl = orig })
}

func (p *pactlRecorder) joined() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		out = append(out, strings.Join(c, " "))
	}
	return out
}

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)
	if len(got) != 2 {
		t.Fatalf("expected 2 streams, got %d: %+v", len(got), got)
	}
	if got[0] != (streamInfo{ID: 41, Volume: 80, AppName: "Firefox"}) {
		t.Fatalf("unexpected first stream: %+v", got[0])
	}
	if got[1].AppName != "jarvis" || got[1].Volume != 100 {
		t.Fatalf("unexpected second stream: %+v", got[1])
	}
}

func TestSinkVolumeCommands(t *testing.T) {
	rec := &pactlRecorder{}
	rec.install(t)

	ctx := context.Background()
	_ = SetSinkVolume(ctx, 150)
	_ = StepSinkVolume(ctx, -5)
	_ = MuteSink(ctx, true)

	want := []string{
		"set-sink-volume @DEFAULT_SINK@ 100%",
		"set-sink-volume @DEFAULT_SINK@ -5%",
		"set-sink-mute @DEFAULT_SINK@ 1",
	}
	got := rec.joined()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDuckerSkipsSelfAndRestores(t *testing.T) {
	rec := &pactlRecorder{}
	rec.install(t)

	d := NewDucker([]string{"jarvis"}, 0.25, 10, 0)
	ctx := context.Background()

	if err := d.Duck(ctx); err != nil {
		t.Fatalf("duck: %v", err)
	}
	if err := d.Duck(ctx); err != nil {
		t.Fatalf("second duck: %v", err)
	}
	if err := d.Unduck(ctx); err != nil {
		t.Fatalf("unduck: %v", err)
	}

	var sets []string
	for _, c := range rec.joined() {
		if strings.HasPrefix(c, "set-sink-input-volume") {
			sets = append(sets, c)
		}
	}
	want := []string{
		"set-sink-input-volume 41 20%",
		"set-sink-input-volume 41 80%",
	}
	if len(sets) != len(want) {
		t.Fatalf("unexpected volume calls: %v", sets)
	}
	for i := range want {
		if sets[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, sets[i], want[i])
		}
	}
}
