// Package tts speaks replies through espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0);
}

static int
espeak_say(const char *voice, int rate, const char *text)
{
	if (!text)
	{ return -1; }

	espeak_VOICE specs = { .languages = voice };
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ return -2; }
	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	if (espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -3; }
	espeak_Synchronize();

	return 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"unsafe"
)

type Options struct {
	Voice string
	// Rate is words per minute; zero keeps the voice default.
	Rate int
}

// Espeak plays one utterance at a time; concurrent callers queue on a mutex.
type Espeak struct {
	opt  Options
	mu   sync.Mutex
	init sync.Once
	err  error
}

func NewEspeak(opt Options) *Espeak {
	if opt.Voice == "" {
		opt.Voice = "en"
	}
	return &Espeak{opt: opt}
}

func (e *Espeak) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.init.Do(func() {
		if rc := C.espeak_init(); rc < 0 {
			e.err = fmt.Errorf("espeak_Initialize failed: %d", int(rc))
		}
	})
	if e.err != nil {
		return e.err
	}

	log.Debug("Speaking", "text", text)

	cvoice := C.CString(e.opt.Voice)
	defer C.free(unsafe.Pointer(cvoice))
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	rc := C.espeak_say(cvoice, C.int(e.opt.Rate), ctext)
	if rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}

	return nil
}
