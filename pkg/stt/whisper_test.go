package stt

import (
	"context"
	"errors"
	"testing"
)

func TestPadSilence(t *testing.T) {
	short := []float32{0.5, -0.5}
	out := padSilence(short)
	if len(out) != minSamples {
		t.Fatalf("len = %d, want %d", len(out), minSamples)
	}
	if out[0] != 0.5 || out[1] != -0.5 || out[2] != 0 {
		t.Fatalf("samples not preserved: %v", out[:3])
	}

	long := make([]float32, minSamples+10)
	if got := padSilence(long); len(got) != len(long) {
		t.Fatalf("long input changed length: %d", len(got))
	}
}

func TestTranscribeEmpty(t *testing.T) {
	var tr Transcriber
	if _, err := tr.Transcribe(context.Background(), nil, Options{}); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
}
