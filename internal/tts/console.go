package tts

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Console writes replies instead of speaking them, for --silent runs.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Speak(_ context.Context, text string) error {
	if text == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "jarvis: %s\n", text)
	return err
}
