// Package audio carries mono 16-bit PCM frames from a capture device to the
// consumers of the voice pipeline.
package audio

import (
	"context"
	"math"
	"time"
)

// Frame is a fixed-length block of signed 16-bit mono samples.
// Frames are never mutated after they are sent on a channel.
type Frame struct {
	Seq      uint64
	Samples  []int16
	Captured time.Time
}

// Duration reports how much audio the frame holds at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(sampleRate)
}

// Source produces frames in capture order until ctx is cancelled or the
// underlying stream ends, then closes the channel.
type Source interface {
	Name() string
	Start(ctx context.Context) (<-chan Frame, error)
	Close() error
}

// RMS returns the root mean square of the samples normalized to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var s float64
	for _, x := range samples {
		v := float64(x) / 32768.0
		s += v * v
	}
	return math.Sqrt(s / float64(len(samples)))
}

// ToFloat32 converts samples to the [-1, 1] range expected by whisper.
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	const scale = 1.0 / 32768.0
	for i, v := range samples {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// FromFloat32 converts [-1, 1] samples to 16-bit PCM, clipping out of range values.
func FromFloat32(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		x := float64(v) * 32767.0
		if x > 32767 {
			x = 32767
		}
		if x < -32768 {
			x = -32768
		}
		out[i] = int16(math.Round(x))
	}
	return out
}
