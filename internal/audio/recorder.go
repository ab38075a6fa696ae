package audio

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoSpeech    = errors.New("no speech before timeout")
	ErrStreamEnded = errors.New("audio stream ended")
)

// Tapper hands out temporary copies of a running frame stream.
type Tapper interface {
	Tap(buffer int) (<-chan Frame, func())
}

type RecorderConfig struct {
	SampleRate       int
	SpeechThreshold  float64       // RMS that counts as voice
	SilenceThreshold float64       // RMS under which voice has stopped
	SpeechFrames     int           // consecutive voiced frames to open a phrase
	SilenceHangover  time.Duration // trailing silence that closes a phrase
	PreRoll          time.Duration // audio kept from before the phrase opened
}

func DefaultRecorderConfig(sampleRate int) RecorderConfig {
	return RecorderConfig{
		SampleRate:       sampleRate,
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		SpeechFrames:     3,
		SilenceHangover:  600 * time.Millisecond,
		PreRoll:          300 * time.Millisecond,
	}
}

// Recorder cuts a single phrase out of a live frame stream using RMS
// endpointing.
type Recorder struct {
	tap Tapper
	cfg RecorderConfig
}

func NewRecorder(tap Tapper, cfg RecorderConfig) *Recorder {
	def := DefaultRecorderConfig(cfg.SampleRate)
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = def.SpeechThreshold
	}
	if cfg.SilenceThreshold <= 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		cfg.SilenceThreshold = cfg.SpeechThreshold * def.SilenceThreshold / def.SpeechThreshold
	}
	if cfg.SpeechFrames <= 0 {
		cfg.SpeechFrames = def.SpeechFrames
	}
	if cfg.SilenceHangover <= 0 {
		cfg.SilenceHangover = def.SilenceHangover
	}
	if cfg.PreRoll < 0 {
		cfg.PreRoll = 0
	}
	return &Recorder{tap: tap, cfg: cfg}
}

// Record waits up to timeout of audio for a phrase to start and returns it
// once trailing silence is heard or phraseLimit of audio has been collected.
// Time is measured in captured audio, with a wall clock guard in case the
// stream stalls.
func (r *Recorder) Record(ctx context.Context, timeout, phraseLimit time.Duration) ([]int16, error) {
	frames, detach := r.tap.Tap(256)
	defer detach()

	guard := time.NewTimer(timeout + phraseLimit + time.Second)
	defer guard.Stop()

	preRollSamples := int(r.cfg.PreRoll.Seconds() * float64(r.cfg.SampleRate))

	var (
		speaking bool
		voiced   int
		waited   time.Duration
		spoken   time.Duration
		silence  time.Duration
		preRoll  []int16
		out      []int16
	)

	for {
		var f Frame
		var ok bool

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-guard.C:
			if speaking {
				return out, nil
			}
			return nil, ErrNoSpeech
		case f, ok = <-frames:
		}

		if !ok {
			if speaking {
				return out, nil
			}
			return nil, ErrStreamEnded
		}

		d := f.Duration(r.cfg.SampleRate)
		level := RMS(f.Samples)

		if !speaking {
			preRoll = append(preRoll, f.Samples...)
			if len(preRoll) > preRollSamples+len(f.Samples) {
				preRoll = preRoll[len(preRoll)-preRollSamples-len(f.Samples):]
			}

			if level >= r.cfg.SpeechThreshold {
				voiced++
			} else {
				voiced = 0
			}

			if voiced >= r.cfg.SpeechFrames {
				speaking = true
				out = append(out, preRoll...)
				spoken = d
				continue
			}

			waited += d
			if timeout > 0 && waited >= timeout {
				return nil, ErrNoSpeech
			}
			continue
		}

		out = append(out, f.Samples...)
		spoken += d

		if level < r.cfg.SilenceThreshold {
			silence += d
			if silence >= r.cfg.SilenceHangover {
				return out, nil
			}
		} else {
			silence = 0
		}

		if phraseLimit > 0 && spoken >= phraseLimit {
			return out, nil
		}
	}
}
