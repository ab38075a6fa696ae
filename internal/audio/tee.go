package audio

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
)

var ErrTeeStarted = errors.New("tee already started")

// Tee forwards every frame of a source to one primary consumer and copies it
// to any number of temporary taps. The primary path blocks and never drops;
// a tap that falls behind loses frames instead of stalling the primary.
type Tee struct {
	src Source

	mu      sync.Mutex
	started bool
	ended   bool
	taps    map[int]chan Frame
	nextID  int
}

func NewTee(src Source) *Tee {
	return &Tee{src: src, taps: make(map[int]chan Frame)}
}

func (t *Tee) Name() string { return t.src.Name() }

func (t *Tee) Start(ctx context.Context) (<-chan Frame, error) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil, ErrTeeStarted
	}
	t.started = true
	t.mu.Unlock()

	in, err := t.src.Start(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Frame, 64)
	go t.forward(ctx, in, out)
	return out, nil
}

func (t *Tee) Close() error {
	return t.src.Close()
}

// Tap subscribes to the frames that arrive from now on. The returned func
// detaches the tap and closes its channel; it is safe to call more than once.
func (t *Tee) Tap(buffer int) (<-chan Frame, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Frame, buffer)

	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.taps[id] = ch
	t.mu.Unlock()

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.taps[id]; ok {
			delete(t.taps, id)
			close(c)
		}
	}
}

func (t *Tee) forward(ctx context.Context, in <-chan Frame, out chan<- Frame) {
	defer func() {
		close(out)
		t.mu.Lock()
		t.ended = true
		for id, c := range t.taps {
			delete(t.taps, id)
			close(c)
		}
		t.mu.Unlock()
	}()

	for f := range in {
		t.mu.Lock()
		for _, c := range t.taps {
			select {
			case c <- f:
			default:
				log.Debug("Tap behind, dropping frame", "seq", f.Seq)
			}
		}
		t.mu.Unlock()

		select {
		case out <- f:
		case <-ctx.Done():
			return
		}
	}
}
