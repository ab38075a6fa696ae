package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memLedger struct {
	mu       sync.Mutex
	started  []Record
	finished []Record
}

func (m *memLedger) JobStarted(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, rec)
	return nil
}

func (m *memLedger) JobFinished(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, rec)
	return nil
}

func wait(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("job %s did not finish", h.ID)
	}
}

func TestSpawnReturnsImmediately(t *testing.T) {
	r := NewRunner(nil, Options{})
	defer r.Shutdown(context.Background())

	release := make(chan struct{})
	start := time.Now()
	h := r.Spawn(Job{Kind: "sleep", Duration: 10 * time.Second, Run: func(ctx context.Context) error {
		<-release
		return nil
	}})
	if took := time.Since(start); took > 100*time.Millisecond {
		t.Fatalf("Spawn blocked for %v", took)
	}
	if h.ID == "" {
		t.Fatal("empty job id")
	}
	if len(r.Active()) != 1 {
		t.Fatalf("active = %d, want 1", len(r.Active()))
	}

	close(release)
	wait(t, h)
	if h.Err() != nil {
		t.Fatalf("err = %v", h.Err())
	}
	if len(r.Active()) != 0 {
		t.Fatalf("active = %d after finish", len(r.Active()))
	}
}

func TestErrorsAndPanicsStayInJob(t *testing.T) {
	ledger := &memLedger{}
	r := NewRunner(ledger, Options{})
	defer r.Shutdown(context.Background())

	boom := errors.New("ffmpeg exited 1")
	failed := r.Spawn(Job{Kind: "fail", Run: func(context.Context) error { return boom }})
	panicked := r.Spawn(Job{Kind: "panic", Run: func(context.Context) error { panic("bad frame") }})
	wait(t, failed)
	wait(t, panicked)

	if !errors.Is(failed.Err(), boom) {
		t.Fatalf("failed err = %v", failed.Err())
	}
	if panicked.Err() == nil {
		t.Fatal("panic not converted to error")
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if len(ledger.started) != 2 || len(ledger.finished) != 2 {
		t.Fatalf("ledger started=%d finished=%d", len(ledger.started), len(ledger.finished))
	}
	for _, rec := range ledger.finished {
		if rec.Status != StatusFailed || rec.Err == "" {
			t.Fatalf("unexpected record %+v", rec)
		}
	}
}

func TestDeadlineFromDuration(t *testing.T) {
	r := NewRunner(nil, Options{Grace: 10 * time.Millisecond})
	defer r.Shutdown(context.Background())

	h := r.Spawn(Job{Kind: "hang", Duration: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	wait(t, h)
	if !errors.Is(h.Err(), context.DeadlineExceeded) {
		t.Fatalf("err = %v", h.Err())
	}
}

func TestOverlappingJobs(t *testing.T) {
	r := NewRunner(nil, Options{})
	defer r.Shutdown(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	both := make(chan struct{})
	run := func(ctx context.Context) error {
		wg.Done()
		<-both
		return nil
	}
	a := r.Spawn(Job{Kind: "a", Output: "/tmp/a.mp4", Run: run})
	b := r.Spawn(Job{Kind: "b", Output: "/tmp/b.mp4", Run: run})

	wg.Wait()
	close(both)
	wait(t, a)
	wait(t, b)
	if a.ID == b.ID {
		t.Fatal("duplicate job ids")
	}
}

func TestShutdownCancelsAndRejects(t *testing.T) {
	ledger := &memLedger{}
	r := NewRunner(ledger, Options{})

	h := r.Spawn(Job{Kind: "forever", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	wait(t, h)
	if !errors.Is(h.Err(), context.Canceled) {
		t.Fatalf("err = %v", h.Err())
	}

	late := r.Spawn(Job{Kind: "late", Run: func(context.Context) error { return nil }})
	wait(t, late)
	if !errors.Is(late.Err(), ErrClosed) {
		t.Fatalf("late err = %v", late.Err())
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	if got := ledger.finished[0].Status; got != StatusCancelled {
		t.Fatalf("status = %s", got)
	}
}
