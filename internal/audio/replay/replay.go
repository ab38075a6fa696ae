// Package replay feeds a decoded audio file through the pipeline as if it
// came from a microphone.
package replay

import (
	"context"
	"fmt"
	log "log/slog"
	"path/filepath"
	"time"

	"jarvis/internal/audio"
	"jarvis/pkg/audioconv"
)

type Options struct {
	SampleRate  int
	FrameLength int
	Realtime    bool          // pace frames at capture speed
	TrailingGap time.Duration // silence appended after the file
}

type File struct {
	path string
	opt  Options
}

func New(path string, opt Options) *File {
	return &File{path: path, opt: opt}
}

func (f *File) Name() string { return "replay:" + filepath.Base(f.path) }

func (f *File) Start(ctx context.Context) (<-chan audio.Frame, error) {
	if f.opt.SampleRate <= 0 || f.opt.FrameLength <= 0 {
		return nil, fmt.Errorf("invalid stream shape %d Hz / %d samples", f.opt.SampleRate, f.opt.FrameLength)
	}

	pcm, err := audioconv.DecodeFile(ctx, f.path, audioconv.Options{SampleRate: f.opt.SampleRate})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}

	samples := audio.FromFloat32(pcm)
	gap := int(f.opt.TrailingGap.Seconds() * float64(f.opt.SampleRate))
	samples = append(samples, make([]int16, gap)...)

	frames := Split(samples, f.opt.FrameLength)
	log.Info("Replaying file", "path", f.path, "frames", len(frames))

	out := make(chan audio.Frame)
	go func() {
		defer close(out)

		var tick *time.Ticker
		if f.opt.Realtime {
			tick = time.NewTicker(time.Duration(f.opt.FrameLength) * time.Second / time.Duration(f.opt.SampleRate))
			defer tick.Stop()
		}

		for _, fr := range frames {
			if tick != nil {
				select {
				case <-tick.C:
				case <-ctx.Done():
					return
				}
			}
			fr.Captured = time.Now()
			select {
			case out <- fr:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (f *File) Close() error { return nil }

// Split cuts samples into frames of exactly frameLength, zero padding the
// last one.
func Split(samples []int16, frameLength int) []audio.Frame {
	if frameLength <= 0 {
		return nil
	}
	n := (len(samples) + frameLength - 1) / frameLength
	out := make([]audio.Frame, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]int16, frameLength)
		copy(buf, samples[i*frameLength:])
		out = append(out, audio.Frame{Seq: uint64(i), Samples: buf})
	}
	return out
}
