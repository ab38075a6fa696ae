// Package mic streams the default input device as 16-bit mono frames.
package mic

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"jarvis/internal/audio"
)

var ErrStarted = errors.New("microphone already started")

type Microphone struct {
	sampleRate  int
	frameLength int

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	done     chan struct{}
	exited   chan struct{}
}

// New initializes portaudio. Close must be called to release it.
func New(sampleRate, frameLength int) (*Microphone, error) {
	if sampleRate <= 0 || frameLength <= 0 {
		return nil, fmt.Errorf("invalid stream shape %d Hz / %d samples", sampleRate, frameLength)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &Microphone{
		sampleRate:  sampleRate,
		frameLength: frameLength,
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
	}, nil
}

func (m *Microphone) Name() string { return "microphone" }

func (m *Microphone) Start(ctx context.Context) (<-chan audio.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil, ErrStarted
	}

	buf := make([]int16, m.frameLength)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	m.started = true

	out := make(chan audio.Frame, 32)
	go m.read(ctx, stream, buf, out)

	log.Debug("Microphone started", "rate", m.sampleRate, "frame", m.frameLength)
	return out, nil
}

// read owns the stream: portaudio streams must not be stopped while another
// goroutine is blocked in Read.
func (m *Microphone) read(ctx context.Context, stream *portaudio.Stream, buf []int16, out chan<- audio.Frame) {
	defer close(m.exited)
	defer close(out)
	defer func() {
		_ = stream.Stop()
		_ = stream.Close()
	}()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				log.Warn("Input overflowed", "seq", seq)
			} else {
				log.Error("Failed to read microphone", "err", err)
				return
			}
		}

		f := audio.Frame{
			Seq:      seq,
			Samples:  append([]int16(nil), buf...),
			Captured: time.Now(),
		}
		seq++

		select {
		case out <- f:
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

// Close stops the stream, waits for the reader to release it and
// terminates portaudio.
func (m *Microphone) Close() error {
	m.stopOnce.Do(func() { close(m.done) })

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	if started {
		<-m.exited
	}
	return portaudio.Terminate()
}
