// Package jobs runs detached background work such as screen recordings.
package jobs

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrClosed = errors.New("jobs: runner shut down")

type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is a unit of work owning its Output. Duration is how long the work is
// expected to take; the job context expires Grace after that. Zero means no
// deadline.
type Job struct {
	Kind     string
	Output   string
	Duration time.Duration
	Run      func(ctx context.Context) error
}

type Record struct {
	ID       string
	Kind     string
	Output   string
	Status   Status
	Started  time.Time
	Finished time.Time
	Err      string
}

// Ledger keeps a history of jobs. Failures to record are logged only.
type Ledger interface {
	JobStarted(ctx context.Context, rec Record) error
	JobFinished(ctx context.Context, rec Record) error
}

type Handle struct {
	ID      string
	Kind    string
	Output  string
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is the job's result, valid once Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *Handle) Cancel() { h.cancel() }

type Options struct {
	Grace time.Duration
}

type Runner struct {
	ledger Ledger
	grace  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	active  map[string]*Handle
	entropy *rand.Rand
}

// NewRunner returns a runner recording into ledger, which may be nil.
func NewRunner(ledger Ledger, opt Options) *Runner {
	if opt.Grace <= 0 {
		opt.Grace = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ledger:  ledger,
		grace:   opt.Grace,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*Handle),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Spawn starts job on its own goroutine and returns without waiting.
// Errors and panics stay inside the job.
func (r *Runner) Spawn(job Job) *Handle {
	now := time.Now()

	r.mu.Lock()
	h := &Handle{
		ID:      ulid.MustNew(ulid.Timestamp(now), r.entropy).String(),
		Kind:    job.Kind,
		Output:  job.Output,
		Started: now,
		done:    make(chan struct{}),
	}
	if r.closed {
		r.mu.Unlock()
		h.cancel = func() {}
		h.err = ErrClosed
		close(h.done)
		log.Warn("Job rejected, runner is shut down", "kind", job.Kind)
		return h
	}

	var ctx context.Context
	if job.Duration > 0 {
		ctx, h.cancel = context.WithTimeout(r.ctx, job.Duration+r.grace)
	} else {
		ctx, h.cancel = context.WithCancel(r.ctx)
	}
	r.active[h.ID] = h
	r.wg.Add(1)
	r.mu.Unlock()

	r.record(Record{ID: h.ID, Kind: h.Kind, Output: h.Output, Status: StatusRunning, Started: now}, true)
	log.Info("Job started", "id", h.ID, "kind", h.Kind, "output", h.Output, "duration", job.Duration)

	go r.run(ctx, h, job)
	return h
}

func (r *Runner) run(ctx context.Context, h *Handle, job Job) {
	defer r.wg.Done()
	defer h.cancel()

	err := safeRun(ctx, job.Run)

	r.mu.Lock()
	delete(r.active, h.ID)
	r.mu.Unlock()

	rec := Record{ID: h.ID, Kind: h.Kind, Output: h.Output, Status: StatusDone, Started: h.Started, Finished: time.Now()}
	switch {
	case err == nil:
		log.Info("Job finished", "id", h.ID, "kind", h.Kind, "took", rec.Finished.Sub(h.Started).Round(time.Millisecond))
	case errors.Is(err, context.Canceled):
		rec.Status, rec.Err = StatusCancelled, err.Error()
		log.Warn("Job cancelled", "id", h.ID, "kind", h.Kind)
	default:
		rec.Status, rec.Err = StatusFailed, err.Error()
		log.Error("Job failed", "id", h.ID, "kind", h.Kind, "err", err)
	}
	r.record(rec, false)

	h.err = err
	close(h.done)
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	if fn == nil {
		return errors.New("job has no work")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx)
}

func (r *Runner) record(rec Record, started bool) {
	if r.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	if started {
		err = r.ledger.JobStarted(ctx, rec)
	} else {
		err = r.ledger.JobFinished(ctx, rec)
	}
	if err != nil {
		log.Warn("Failed to record job", "id", rec.ID, "status", rec.Status, "err", err)
	}
}

// Active lists running jobs, oldest first.
func (r *Runner) Active() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.active))
	for _, h := range r.active {
		out = append(out, h)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *Handle) int { return a.Started.Compare(b.Started) })
	return out
}

// Shutdown cancels running jobs and waits for them to return or for ctx to
// expire. Later Spawn calls fail with ErrClosed.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	n := len(r.active)
	r.mu.Unlock()

	if n > 0 {
		log.Info("Cancelling background jobs", "count", n)
	}
	r.cancel()

	waited := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running: %w", ctx.Err())
	}
}
