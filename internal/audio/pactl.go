package audio

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

// runPactl is replaced in tests.
var runPactl = func(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

type streamInfo struct {
	ID      int
	Volume  int
	AppName string
}

func listStreams(ctx context.Context) ([]streamInfo, error) {
	out, err := runPactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func parseSinkInputs(text string) []streamInfo {
	parts := strings.Split(text, "Sink Input #")
	if len(parts) <= 1 {
		return nil
	}

	var res []streamInfo

	for _, block := range parts[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		s := streamInfo{ID: id}

		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			// application.name = "Firefox"
			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if i := strings.Index(line, "\""); i >= 0 {
					rest := line[i+1:]
					if j := strings.Index(rest, "\""); j >= 0 {
						s.AppName = rest[:j]
					}
				}
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}

		res = append(res, s)
	}

	return res
}

func setSinkInputVolume(ctx context.Context, id int, percent int) error {
	_, err := runPactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", clampPercent(percent, 150)))
	return err
}

// SetSinkVolume sets the default output to an absolute percentage.
func SetSinkVolume(ctx context.Context, percent int) error {
	_, err := runPactl(ctx, "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("%d%%", clampPercent(percent, 100)))
	return err
}

// StepSinkVolume moves the default output up or down by delta percent.
func StepSinkVolume(ctx context.Context, delta int) error {
	_, err := runPactl(ctx, "set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("%+d%%", delta))
	return err
}

// MuteSink mutes or unmutes the default output.
func MuteSink(ctx context.Context, mute bool) error {
	state := "0"
	if mute {
		state = "1"
	}
	_, err := runPactl(ctx, "set-sink-mute", "@DEFAULT_SINK@", state)
	return err
}

func clampPercent(p, max int) int {
	if p < 0 {
		return 0
	}
	if p > max {
		return max
	}
	return p
}
