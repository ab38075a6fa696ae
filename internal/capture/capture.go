// Package capture records one spoken phrase and returns its normalized text.
package capture

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrTimeout means nobody started speaking before the listen timeout.
	ErrTimeout = errors.New("capture: no speech before timeout")
	// ErrEmpty means speech was heard but nothing intelligible came out.
	ErrEmpty = errors.New("capture: nothing understood")
	// ErrService wraps speech-to-text backend failures.
	ErrService = errors.New("capture: speech service failed")
)

// Transcriber listens for at most timeout for speech to begin and returns
// the raw transcript of a phrase no longer than phraseLimit.
type Transcriber interface {
	Listen(ctx context.Context, timeout, phraseLimit time.Duration) (string, error)
}

type Options struct {
	Timeout     time.Duration
	PhraseLimit time.Duration
}

func DefaultOptions() Options {
	return Options{Timeout: 8 * time.Second, PhraseLimit: 12 * time.Second}
}

type Capture struct {
	tr  Transcriber
	opt Options
}

func New(tr Transcriber, opt Options) *Capture {
	def := DefaultOptions()
	if opt.Timeout <= 0 {
		opt.Timeout = def.Timeout
	}
	if opt.PhraseLimit <= 0 {
		opt.PhraseLimit = def.PhraseLimit
	}
	return &Capture{tr: tr, opt: opt}
}

// Utterance returns the lowercased transcript of the next phrase, or one of
// ErrTimeout, ErrEmpty, ErrService. Context errors pass through unchanged.
func (c *Capture) Utterance(ctx context.Context) (string, error) {
	start := time.Now()
	raw, err := c.tr.Listen(ctx, c.opt.Timeout, c.opt.PhraseLimit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		switch {
		case errors.Is(err, ErrTimeout), errors.Is(err, ErrEmpty), errors.Is(err, ErrService):
			return "", err
		default:
			return "", fmt.Errorf("%w: %w", ErrService, err)
		}
	}

	text := Normalize(raw)
	if text == "" {
		log.Debug("Transcript empty after normalization", "raw", raw)
		return "", ErrEmpty
	}

	log.Info("Heard", "text", text, "took", time.Since(start).Round(time.Millisecond))
	return text, nil
}

var (
	annotation = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)
	trailing   = regexp.MustCompile(`[\s.,!?;:…"']+$`)
	leading    = regexp.MustCompile(`^[\s.,!?;:…"'-]+`)
)

// Normalize lowercases a transcript and strips recognizer annotations such
// as "[BLANK_AUDIO]" or "(music)" along with surrounding punctuation.
func Normalize(s string) string {
	s = annotation.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	s = trailing.ReplaceAllString(s, "")
	s = leading.ReplaceAllString(s, "")
	return s
}
