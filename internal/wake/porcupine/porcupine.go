// Package porcupine adapts the Picovoice Porcupine engine to wake.Engine.
package porcupine

import (
	"errors"
	"fmt"
	"strings"

	pv "github.com/Picovoice/porcupine/binding/go/v3"

	"jarvis/internal/wake"
)

// Stream shape Porcupine v3 consumes. Open checks the live engine against
// whatever the source was built with.
const (
	SampleRate  = 16000
	FrameLength = 512
)

type Engine struct {
	handle pv.Porcupine
}

// New is a wake.EngineFactory.
func New(cfg wake.EngineConfig) (wake.Engine, error) {
	e := &Engine{handle: pv.Porcupine{
		AccessKey:     cfg.AccessKey,
		ModelPath:     cfg.ModelPath,
		Sensitivities: []float32{cfg.Sensitivity},
	}}

	if cfg.Keyword.Builtin != "" {
		kw := pv.BuiltInKeyword(cfg.Keyword.Builtin)
		if !kw.IsValid() {
			return nil, fmt.Errorf("%w: %q not known to porcupine %s", wake.ErrInvalidModel, cfg.Keyword.Builtin, pv.Version)
		}
		e.handle.BuiltInKeywords = []pv.BuiltInKeyword{kw}
	} else {
		e.handle.KeywordPaths = []string{cfg.Keyword.Path}
	}

	if err := e.handle.Init(); err != nil {
		return nil, initError(err)
	}
	return e, nil
}

// initError sorts an Init failure into the wake error classes: activation
// and access key problems are ErrInvalidKey, rejected arguments are
// ErrInvalidModel, the rest stay plain engine errors.
func initError(err error) error {
	var pe *pv.PorcupineError
	if !errors.As(err, &pe) {
		return fmt.Errorf("porcupine init: %w", err)
	}
	if class := classify(pe.StatusCode, pe.Message); class != nil {
		return fmt.Errorf("%w: porcupine: %w", class, err)
	}
	return fmt.Errorf("porcupine init: %w", err)
}

func classify(status pv.PvStatus, msg string) error {
	switch status {
	case pv.ACTIVATION_ERROR, pv.ACTIVATION_REFUSED, pv.ACTIVATION_LIMIT_REACHED, pv.ACTIVATION_THROTTLED:
		return wake.ErrInvalidKey
	case pv.INVALID_ARGUMENT:
		if strings.Contains(strings.ToLower(msg), "accesskey") {
			return wake.ErrInvalidKey
		}
		return wake.ErrInvalidModel
	}
	return nil
}

func (e *Engine) Process(pcm []int16) (int, error) {
	return e.handle.Process(pcm)
}

func (e *Engine) FrameLength() int { return pv.FrameLength }
func (e *Engine) SampleRate() int  { return pv.SampleRate }

func (e *Engine) Close() error {
	return e.handle.Delete()
}
