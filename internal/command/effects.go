package command

import (
	"context"
	"time"

	"jarvis/internal/jobs"
)

// AppControl launches and manages desktop applications. An empty name in
// the window calls means the active window.
type AppControl interface {
	Open(ctx context.Context, name string) error
	Close(ctx context.Context, name string) error
	Focus(ctx context.Context, name string) error
	Minimize(ctx context.Context, name string) error
	Maximize(ctx context.Context, name string) error
}

type Keyboard interface {
	Type(ctx context.Context, text string) error
	// Press sends a key or chord, e.g. "ctrl+s" or "XF86AudioPlay".
	Press(ctx context.Context, key string) error
}

// Opener hands URLs and paths to the desktop's default handler.
type Opener interface {
	OpenURL(ctx context.Context, url string) error
	OpenPath(ctx context.Context, path string) error
}

type Mixer interface {
	SetVolume(ctx context.Context, percent int) error
	StepVolume(ctx context.Context, delta int) error
	Mute(ctx context.Context, on bool) error
}

type ScreenCapture interface {
	Screenshot(ctx context.Context, path string) error
	// Record blocks for d while writing a video to path.
	Record(ctx context.Context, path string, d time.Duration) error
}

// PowerControl issues OS directives without waiting for them to take effect.
type PowerControl interface {
	Shutdown(ctx context.Context, delay time.Duration) error
	Restart(ctx context.Context, delay time.Duration) error
	Cancel(ctx context.Context) error
	Lock(ctx context.Context) error
}

type Battery struct {
	Percent  float64
	Charging bool
}

type Memory struct {
	Percent float64
	Total   uint64
}

type SystemInfo interface {
	Battery(ctx context.Context) (Battery, error)
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (Memory, error)
	IPAddress(ctx context.Context) (string, error)
	OS(ctx context.Context) (string, error)
}

type Spawner interface {
	Spawn(job jobs.Job) *jobs.Handle
}

type Effects struct {
	Apps     AppControl
	Keyboard Keyboard
	Opener   Opener
	Mixer    Mixer
	Screen   ScreenCapture
	Power    PowerControl
	System   SystemInfo
	Jobs     Spawner
}
