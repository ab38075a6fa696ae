// Package listen implements capture.Transcriber on top of the shared frame
// stream and a local whisper model.
package listen

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"jarvis/internal/audio"
	"jarvis/internal/capture"
	"jarvis/pkg/stt"
)

type Recorder interface {
	Record(ctx context.Context, timeout, phraseLimit time.Duration) ([]int16, error)
}

type Recognizer interface {
	TranscribeInt16(ctx context.Context, pcm []int16, opt stt.Options) (stt.Result, error)
}

type Options struct {
	SampleRate int
	STT        stt.Options
	// DumpDir, when set, receives a WAV file of every captured phrase.
	DumpDir string
}

type Listener struct {
	rec   Recorder
	recog Recognizer
	opt   Options
}

func New(rec Recorder, recog Recognizer, opt Options) *Listener {
	if opt.SampleRate <= 0 {
		opt.SampleRate = stt.SampleRate
	}
	return &Listener{rec: rec, recog: recog, opt: opt}
}

func (l *Listener) Listen(ctx context.Context, timeout, phraseLimit time.Duration) (string, error) {
	pcm, err := l.rec.Record(ctx, timeout, phraseLimit)
	switch {
	case errors.Is(err, audio.ErrNoSpeech):
		return "", capture.ErrTimeout
	case err != nil:
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: record: %w", capture.ErrService, err)
	}

	took := time.Duration(len(pcm)) * time.Second / time.Duration(l.opt.SampleRate)
	log.Debug("Captured phrase", "audio", took.Round(time.Millisecond))

	if l.opt.DumpDir != "" {
		if path, err := dumpWAV(l.opt.DumpDir, pcm, l.opt.SampleRate); err != nil {
			log.Warn("Failed to save phrase", "err", err)
		} else {
			log.Debug("Saved phrase", "path", path)
		}
	}

	res, err := l.recog.TranscribeInt16(ctx, pcm, l.opt.STT)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", capture.ErrService, err)
	}

	log.Debug("Transcribed", "text", res.Text, "lang", res.Language, "segments", len(res.Segments))
	return res.Text, nil
}

func dumpWAV(dir string, pcm []int16, rate int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("phrase-%s.wav", time.Now().Format("20060102-150405.000")))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
