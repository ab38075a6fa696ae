// Package notify plays the short chime that tells the user Jarvis is listening.
package notify

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

const toneRate beep.SampleRate = 44100

var (
	speakerOnce sync.Once
	speakerRate beep.SampleRate
	speakerErr  error
)

// initSpeaker opens the output device once per process; later chimes are
// resampled to the first rate.
func initSpeaker(rate beep.SampleRate) (beep.SampleRate, error) {
	speakerOnce.Do(func() {
		speakerRate = rate
		speakerErr = speaker.Init(rate, rate.N(time.Second/10))
	})
	return speakerRate, speakerErr
}

type Chime struct {
	buf *beep.Buffer
}

// Load decodes the mp3 at path into memory.
func Load(path string) (*Chime, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chime: %w", err)
	}
	defer f.Close()

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode chime: %w", err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	return &Chime{buf: buf}, nil
}

// Tone synthesizes a sine chime for when no sound file is configured.
func Tone(freq float64, d time.Duration) *Chime {
	format := beep.Format{SampleRate: toneRate, NumChannels: 2, Precision: 2}
	total := toneRate.N(d)
	fade := toneRate.N(10 * time.Millisecond)

	pos := 0
	sine := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= total {
			return 0, false
		}
		n := 0
		for i := range samples {
			if pos >= total {
				break
			}
			gain := 0.3
			if pos < fade {
				gain *= float64(pos) / float64(fade)
			} else if total-pos < fade {
				gain *= float64(total-pos) / float64(fade)
			}
			v := gain * math.Sin(2*math.Pi*freq*float64(pos)/float64(toneRate))
			samples[i] = [2]float64{v, v}
			pos++
			n++
		}
		return n, true
	})

	buf := beep.NewBuffer(format)
	buf.Append(sine)
	return &Chime{buf: buf}
}

func (c *Chime) Duration() time.Duration {
	return c.buf.Format().SampleRate.D(c.buf.Len())
}

// Play blocks until the chime has finished or ctx is done.
func (c *Chime) Play(ctx context.Context) error {
	rate, err := initSpeaker(c.buf.Format().SampleRate)
	if err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	var s beep.Streamer = c.buf.Streamer(0, c.buf.Len())
	if src := c.buf.Format().SampleRate; src != rate {
		s = beep.Resample(4, src, rate, s)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
