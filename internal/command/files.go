package command

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"jarvis/internal/jobs"
)

// resolve turns a spoken path into an absolute one under BaseDir.
func (h *handlers) resolve(p string) string {
	p = strings.Trim(strings.TrimSpace(p), `"'`)
	switch {
	case p == "~":
		return h.opt.BaseDir
	case strings.HasPrefix(p, "~/"):
		return filepath.Join(h.opt.BaseDir, p[2:])
	case filepath.IsAbs(p):
		return filepath.Clean(p)
	default:
		return filepath.Join(h.opt.BaseDir, p)
	}
}

// within reports whether path is BaseDir or lies below it.
func (h *handlers) within(path string) bool {
	rel, err := filepath.Rel(filepath.Clean(h.opt.BaseDir), path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (h *handlers) createFolder(_ context.Context, args []string) (string, error) {
	path := h.resolve(args[0])
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Sprintf("I couldn't create folder %s.", args[0]), err
	}
	return "Created folder " + args[0], nil
}

func (h *handlers) deleteFolder(_ context.Context, args []string) (string, error) {
	path := h.resolve(args[0])
	if path == filepath.Clean(h.opt.BaseDir) || !h.within(path) {
		return "I won't delete that folder.", nil
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Sprintf("Folder %s not found", args[0]), nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Sprintf("I couldn't delete folder %s.", args[0]), err
	}
	return "Deleted folder " + args[0], nil
}

func (h *handlers) deleteFile(_ context.Context, args []string) (string, error) {
	path := h.resolve(args[0])
	if !h.within(path) {
		return "I won't delete that file.", nil
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Sprintf("File %s not found", args[0]), nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Sprintf("I couldn't delete file %s.", args[0]), err
	}
	return "Deleted file " + args[0], nil
}

func (h *handlers) openFile(ctx context.Context, args []string) (string, error) {
	path := h.resolve(args[0])
	if _, err := os.Stat(path); err != nil {
		return fmt.Sprintf("File %s not found", args[0]), nil
	}
	if err := h.fx.Opener.OpenPath(ctx, path); err != nil {
		return "", err
	}
	return "Opening file " + args[0], nil
}

// findMatches lists entries of dir whose name contains substr, sorted.
func findMatches(dir, substr string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	substr = strings.ToLower(substr)

	var out []string
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name()), substr) {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

func (h *handlers) findFile(ctx context.Context, args []string) (string, error) {
	name, folder := args[0], args[1]
	dir := h.resolve(folder)

	matches, err := findMatches(dir, name)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("Folder %s not found", folder), nil
	}
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "No matching files found.", nil
	}

	if err := h.fx.Opener.OpenPath(ctx, filepath.Join(dir, matches[0])); err != nil {
		return "", err
	}
	return fmt.Sprintf("Found %s; opening %s.", plural(len(matches), "file"), matches[0]), nil
}

func (h *handlers) playFolder(ctx context.Context, args []string) (string, error) {
	dir := h.resolve(args[0])
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Sprintf("Folder %s not found", args[0]), nil
	}

	tracks, err := filepath.Glob(filepath.Join(dir, "*.mp3"))
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "No mp3 files found.", nil
	}
	slices.Sort(tracks)

	if err := h.fx.Opener.OpenPath(ctx, tracks[0]); err != nil {
		return "", err
	}
	return "Playing " + strings.TrimSuffix(filepath.Base(tracks[0]), ".mp3"), nil
}

func recordJob(path string, d time.Duration, screen ScreenCapture) jobs.Job {
	return jobs.Job{
		Kind:     "screen-record",
		Output:   path,
		Duration: d,
		Run: func(ctx context.Context) error {
			return screen.Record(ctx, path, d)
		},
	}
}
