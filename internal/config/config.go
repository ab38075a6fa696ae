// Package config resolves runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Error reports a missing or invalid setting. It is fatal at startup.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

type Config struct {
	Wake     WakeConfig
	Listen   ListenConfig
	LLM      LLMConfig
	Voice    VoiceConfig
	Commands CommandsConfig
	Paths    PathsConfig
}

type WakeConfig struct {
	AccessKey   string
	Keyword     string
	KeywordPath string
	ModelPath   string
	Sensitivity float32
}

type ListenConfig struct {
	Timeout      time.Duration
	PhraseLimit  time.Duration
	WhisperModel string
	Language     string
	Threads      int
	DumpDir      string
}

type LLMConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	SocksProxy string
}

type VoiceConfig struct {
	TTSVoice string
	Chime    string
	UserName string
	Duck     bool
}

type CommandsConfig struct {
	PowerDelay     time.Duration
	RecordDuration time.Duration
}

type PathsConfig struct {
	Home          string
	OutputDir     string
	DB            string
	ControlSocket string
	BusURL        string
}

// Load resolves configuration from environment variables and defaults.
// The first invalid setting is returned as *Error.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	home = envOrDefault("JARVIS_HOME", home)
	dataDir := filepath.Join(home, ".local", "share", "jarvis")

	cfg := Config{
		Wake: WakeConfig{
			AccessKey:   strings.TrimSpace(os.Getenv("PV_ACCESS_KEY")),
			Keyword:     envOrDefault("JARVIS_WAKE_KEYWORD", "jarvis"),
			KeywordPath: strings.TrimSpace(os.Getenv("JARVIS_KEYWORD_PATH")),
			ModelPath:   strings.TrimSpace(os.Getenv("PV_MODEL_PATH")),
		},
		Listen: ListenConfig{
			WhisperModel: envOrDefault("WHISPER_MODEL", filepath.Join(dataDir, "ggml-base.en.bin")),
			Language:     envOrDefault("WHISPER_LANGUAGE", "en"),
			Threads:      envOrDefaultInt("WHISPER_THREADS", 0),
			DumpDir:      strings.TrimSpace(os.Getenv("JARVIS_DUMP_DIR")),
		},
		LLM: LLMConfig{
			APIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			Model:      envOrDefault("OPENAI_MODEL", "gpt-5-nano"),
			BaseURL:    strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
			SocksProxy: strings.TrimSpace(os.Getenv("JARVIS_SOCKS_PROXY")),
		},
		Voice: VoiceConfig{
			TTSVoice: envOrDefault("JARVIS_TTS_VOICE", "en"),
			Chime:    strings.TrimSpace(os.Getenv("JARVIS_CHIME")),
			UserName: strings.TrimSpace(os.Getenv("JARVIS_USER_NAME")),
			Duck:     envOrDefaultBool("JARVIS_DUCK", true),
		},
		Paths: PathsConfig{
			Home:          home,
			OutputDir:     envOrDefault("JARVIS_OUTPUT_DIR", filepath.Join(home, "Videos", "jarvis")),
			DB:            envOrDefault("JARVIS_DB", filepath.Join(dataDir, "jarvis.db")),
			ControlSocket: envOrDefault("JARVIS_CONTROL_SOCKET", "/tmp/jarvis.sock"),
			BusURL:        strings.TrimSpace(os.Getenv("JARVIS_BUS_URL")),
		},
	}

	if cfg.Wake.AccessKey == "" {
		return Config{}, &Error{Key: "PV_ACCESS_KEY", Reason: "not set"}
	}

	sens, err := envFloat("JARVIS_WAKE_SENSITIVITY", 0.5)
	if err != nil {
		return Config{}, err
	}
	if sens < 0 || sens > 1 {
		return Config{}, &Error{Key: "JARVIS_WAKE_SENSITIVITY", Reason: fmt.Sprintf("%v outside [0, 1]", sens)}
	}
	cfg.Wake.Sensitivity = float32(sens)

	if cfg.Wake.KeywordPath != "" && !filepath.IsAbs(cfg.Wake.KeywordPath) {
		return Config{}, &Error{Key: "JARVIS_KEYWORD_PATH", Reason: "must be an absolute path"}
	}

	durations := []struct {
		key      string
		fallback time.Duration
		zeroOK   bool
		dst      *time.Duration
	}{
		{"JARVIS_LISTEN_TIMEOUT", 8 * time.Second, false, &cfg.Listen.Timeout},
		{"JARVIS_PHRASE_LIMIT", 12 * time.Second, false, &cfg.Listen.PhraseLimit},
		{"JARVIS_POWER_DELAY", time.Minute, true, &cfg.Commands.PowerDelay},
		{"JARVIS_RECORD_SECONDS", 10 * time.Second, false, &cfg.Commands.RecordDuration},
	}
	for _, d := range durations {
		v, err := envDuration(d.key, d.fallback)
		if err != nil {
			return Config{}, err
		}
		if v == 0 && !d.zeroOK {
			return Config{}, &Error{Key: d.key, Reason: "must be positive"}
		}
		*d.dst = v
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return 0, &Error{Key: key, Reason: fmt.Sprintf("%q is not a number", value)}
	}
	return parsed, nil
}

// envDuration accepts Go durations ("8s", "1m30s") or whole seconds.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if d, err = time.ParseDuration(value); err != nil {
		return 0, &Error{Key: key, Reason: fmt.Sprintf("%q is not a duration", value)}
	}
	if d < 0 {
		return 0, &Error{Key: key, Reason: "must not be negative"}
	}
	return d, nil
}
