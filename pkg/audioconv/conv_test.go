package audioconv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestDecodeWAVResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	data := make([]int, 8000)
	for i := range data {
		data[i] = 8000
	}
	writeWAV(t, path, 8000, 1, data)

	x, err := DecodeFile(context.Background(), path, Options{SampleRate: 16000})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(x) < 15900 || len(x) > 16100 {
		t.Fatalf("expected ~16000 samples, got %d", len(x))
	}
	if x[100] < 0.24 || x[100] > 0.25 {
		t.Fatalf("unexpected sample value %v", x[100])
	}
}

func TestDecodeSniffsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.raw")
	writeWAV(t, path, 16000, 2, make([]int, 3200))

	x, err := DecodeFile(context.Background(), path, Options{MaxSamples: 1000})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(x) != 1000 {
		t.Fatalf("expected MaxSamples trim to 1000, got %d", len(x))
	}
}

func TestDecodeUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := DecodeFile(context.Background(), path, Options{}); err == nil {
		t.Fatalf("expected error for text file")
	}
}

func TestDownmixAndResample(t *testing.T) {
	mono := downmixInterleaved([]float32{1, 0, 0.5, 0.5}, 2)
	if len(mono) != 2 || mono[0] != 0.5 || mono[1] != 0.5 {
		t.Fatalf("unexpected downmix: %v", mono)
	}

	up := resampleLinear([]float32{0, 1}, 1, 2)
	if len(up) != 4 || up[1] != 0.5 {
		t.Fatalf("unexpected resample: %v", up)
	}
}
