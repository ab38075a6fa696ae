// Package wake turns a stream of audio frames into wake-word detections.
package wake

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"sync/atomic"

	"jarvis/internal/audio"
)

var (
	ErrInvalidKey   = errors.New("wake: invalid access key")
	ErrInvalidModel = errors.New("wake: invalid keyword model")
	ErrSensitivity  = errors.New("wake: sensitivity outside [0, 1]")
	ErrEngineInit   = errors.New("wake: detection engine init failed")
	ErrStopped      = errors.New("wake: detector stopped")
	ErrStreamClosed = errors.New("wake: audio stream closed")
)

type Config struct {
	AccessKey string
	Keyword   string
	// ModelPath is a custom keyword file, used when Keyword is not built-in.
	ModelPath string
	// EngineModelPath optionally overrides the engine's language model.
	EngineModelPath string
	Sensitivity     float32
	// SampleRate and FrameLength, when set, must match the engine.
	SampleRate  int
	FrameLength int
}

// Engine scores one frame at a time. Process returns the index of the
// detected keyword or -1.
type Engine interface {
	Process(pcm []int16) (int, error)
	FrameLength() int
	SampleRate() int
	Close() error
}

type EngineConfig struct {
	AccessKey   string
	Keyword     Keyword
	Sensitivity float32
	ModelPath   string
}

type EngineFactory func(EngineConfig) (Engine, error)

type Detector struct {
	engine  Engine
	src     audio.Source
	keyword Keyword
	cancel  context.CancelFunc

	pending chan struct{}
	done    chan struct{}
	exited  chan struct{}

	stopOnce sync.Once
	stopErr  error

	processed  atomic.Uint64
	detections atomic.Uint64
}

// Open validates cfg, builds the engine and starts consuming src. Config
// problems surface as ErrInvalidKey, ErrInvalidModel or ErrSensitivity,
// engine and stream failures as ErrEngineInit. A factory error already
// classed as a key or model problem is returned as is.
func Open(cfg Config, factory EngineFactory, src audio.Source) (*Detector, error) {
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("%w: access key is empty", ErrInvalidKey)
	}
	if cfg.Sensitivity < 0 || cfg.Sensitivity > 1 {
		return nil, fmt.Errorf("%w: %v", ErrSensitivity, cfg.Sensitivity)
	}

	kw, err := ResolveKeyword(cfg.Keyword, cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	engine, err := factory(EngineConfig{
		AccessKey:   cfg.AccessKey,
		Keyword:     kw,
		Sensitivity: cfg.Sensitivity,
		ModelPath:   cfg.EngineModelPath,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrInvalidModel) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEngineInit, err)
	}

	if cfg.FrameLength > 0 && engine.FrameLength() != cfg.FrameLength {
		engine.Close()
		return nil, fmt.Errorf("%w: engine wants %d samples per frame, source gives %d", ErrEngineInit, engine.FrameLength(), cfg.FrameLength)
	}
	if cfg.SampleRate > 0 && engine.SampleRate() != cfg.SampleRate {
		engine.Close()
		return nil, fmt.Errorf("%w: engine wants %d Hz, source gives %d Hz", ErrEngineInit, engine.SampleRate(), cfg.SampleRate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames, err := src.Start(ctx)
	if err != nil {
		cancel()
		engine.Close()
		return nil, fmt.Errorf("%w: start %s: %w", ErrEngineInit, src.Name(), err)
	}

	d := &Detector{
		engine:  engine,
		src:     src,
		keyword: kw,
		cancel:  cancel,
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go d.run(frames)

	log.Info("Wake detector listening", "keyword", kw.String(), "source", src.Name(), "sensitivity", cfg.Sensitivity)
	return d, nil
}

func (d *Detector) Keyword() string { return d.keyword.String() }

// Processed is the number of frames handed to the engine so far.
func (d *Detector) Processed() uint64 { return d.processed.Load() }

func (d *Detector) Detections() uint64 { return d.detections.Load() }

// WaitForWake blocks until a detection is pending and consumes it. Each
// detection releases exactly one waiter.
func (d *Detector) WaitForWake(ctx context.Context) error {
	select {
	case <-d.done:
		return ErrStopped
	default:
	}

	select {
	case <-d.pending:
		return nil
	case <-d.done:
		return ErrStopped
	case <-d.exited:
		select {
		case <-d.pending:
			return nil
		default:
		}
		select {
		case <-d.done:
			return ErrStopped
		default:
			return ErrStreamClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset discards a pending detection, if any.
func (d *Detector) Reset() {
	select {
	case <-d.pending:
		log.Debug("Discarded pending wake detection")
	default:
	}
}

// Trigger latches a detection as if the keyword had been heard.
func (d *Detector) Trigger() {
	log.Info("Wake triggered manually")
	d.latch()
}

// Stop halts frame processing, unblocks waiters with ErrStopped and releases
// the source and engine. Later calls return the first call's result.
func (d *Detector) Stop() error {
	d.stopOnce.Do(func() {
		close(d.done)
		d.cancel()
		<-d.exited

		d.stopErr = errors.Join(d.src.Close(), d.engine.Close())
		log.Info("Wake detector stopped", "frames", d.processed.Load(), "detections", d.detections.Load())
	})
	return d.stopErr
}

func (d *Detector) run(frames <-chan audio.Frame) {
	defer close(d.exited)

	want := d.engine.FrameLength()
	for {
		select {
		case <-d.done:
			return
		case f, ok := <-frames:
			if !ok {
				log.Warn("Frame stream ended", "source", d.src.Name())
				return
			}
			if len(f.Samples) != want {
				log.Warn("Skipping frame with wrong length", "seq", f.Seq, "len", len(f.Samples), "want", want)
				continue
			}

			idx, err := d.engine.Process(f.Samples)
			d.processed.Add(1)
			if err != nil {
				log.Error("Wake engine failed on frame", "seq", f.Seq, "err", err)
				continue
			}
			if idx >= 0 {
				d.detections.Add(1)
				log.Info("Wake word detected", "keyword", d.keyword.String(), "seq", f.Seq)
				d.latch()
			}
		}
	}
}

func (d *Detector) latch() {
	select {
	case d.pending <- struct{}{}:
	default:
		log.Debug("Wake detection already pending")
	}
}
