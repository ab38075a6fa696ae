package main

import (
	"context"
	"testing"
	"time"

	"jarvis/internal/ipc"
	"jarvis/internal/jobs"
	"jarvis/internal/session"
)

type fakeMachine struct {
	state   session.State
	current *session.Session
}

func (f *fakeMachine) State() session.State { return f.state }

func (f *fakeMachine) Current() (session.Session, bool) {
	if f.current == nil {
		return session.Session{}, false
	}
	return *f.current, true
}

type fakeWaker struct{ triggered int }

func (f *fakeWaker) Trigger()        { f.triggered++ }
func (f *fakeWaker) Keyword() string { return "jarvis" }

type fakeJobs []*jobs.Handle

func (f fakeJobs) Active() []*jobs.Handle { return f }

func TestControl(t *testing.T) {
	started := time.Date(2026, 3, 9, 15, 4, 0, 0, time.UTC)
	m := &fakeMachine{state: session.Listening, current: &session.Session{ID: "01J"}}
	w := &fakeWaker{}
	r := fakeJobs{{ID: "job1", Kind: "screen-record", Output: "/tmp/r.mp4", Started: started}}
	var stopped bool
	h := control(m, w, r, func() { stopped = true })
	ctx := context.Background()

	if reply := h(ctx, ipc.Request{Cmd: ipc.CmdTrigger}); !reply.OK || w.triggered != 1 {
		t.Fatalf("trigger: %+v, triggered %d", reply, w.triggered)
	}

	reply := h(ctx, ipc.Request{Cmd: ipc.CmdStatus})
	if !reply.OK || reply.State != "listening" || reply.Session != "01J" || reply.Keyword != "jarvis" {
		t.Fatalf("status: %+v", reply)
	}
	if len(reply.Jobs) != 1 || reply.Jobs[0].ID != "job1" || !reply.Jobs[0].Started.Equal(started) {
		t.Fatalf("status jobs: %+v", reply.Jobs)
	}

	if stopped {
		t.Fatal("shutdown ran early")
	}
	if reply := h(ctx, ipc.Request{Cmd: ipc.CmdShutdown}); !reply.OK || !stopped {
		t.Fatalf("shutdown: %+v", reply)
	}

	if reply := h(ctx, ipc.Request{Cmd: "dance"}); reply.OK || reply.Error == "" {
		t.Fatalf("unknown: %+v", reply)
	}
}
