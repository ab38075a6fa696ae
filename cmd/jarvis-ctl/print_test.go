package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"jarvis/internal/ipc"
	"jarvis/internal/jobs"
)

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 3, 9, 15, 4, 0, 0, time.UTC)
	var buf bytes.Buffer
	printReply(&buf, ipc.CmdStatus, ipc.Reply{
		OK:      true,
		State:   "listening",
		Keyword: "jarvis",
		Session: "01JS",
		Jobs:    []ipc.Job{{ID: "01JJ", Kind: "screen-record", Output: "/tmp/r.mp4", Started: now.Add(-2 * time.Minute)}},
	}, now)

	out := buf.String()
	for _, want := range []string{"state:   listening", "session: 01JS", "01JJ", "2 minutes ago", "/tmp/r.mp4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printReply(&buf, ipc.CmdTrigger, ipc.Reply{OK: true}, now)
	if buf.String() != "ok\n" {
		t.Fatalf("trigger output = %q", buf.String())
	}
}

func TestPrintJobs(t *testing.T) {
	now := time.Date(2026, 3, 9, 15, 4, 0, 0, time.UTC)
	var buf bytes.Buffer
	printJobs(&buf, []jobs.Record{
		{ID: "a", Kind: "screen-record", Status: jobs.StatusDone, Started: now.Add(-time.Hour), Finished: now.Add(-time.Hour + 10*time.Second), Output: "/tmp/a.mp4"},
		{ID: "b", Kind: "screen-record", Status: jobs.StatusFailed, Err: "ffmpeg missing", Started: now.Add(-time.Minute)},
	}, now)

	out := buf.String()
	for _, want := range []string{"ID", "1 hour ago", "10s", "failed: ffmpeg missing"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printJobs(&buf, nil, now)
	if buf.String() != "no jobs recorded\n" {
		t.Fatalf("empty output = %q", buf.String())
	}
}
