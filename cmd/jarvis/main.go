package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"jarvis/internal/audio"
	"jarvis/internal/audio/mic"
	"jarvis/internal/audio/replay"
	"jarvis/internal/bus"
	"jarvis/internal/capture"
	"jarvis/internal/command"
	"jarvis/internal/config"
	"jarvis/internal/effects"
	"jarvis/internal/ipc"
	"jarvis/internal/jobs"
	"jarvis/internal/listen"
	"jarvis/internal/llm"
	"jarvis/internal/notify"
	"jarvis/internal/proxy"
	"jarvis/internal/session"
	"jarvis/internal/store"
	"jarvis/internal/tts"
	"jarvis/internal/wake"
	"jarvis/internal/wake/porcupine"
	"jarvis/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

type flags struct {
	replay  string
	silent  bool
	noChime bool
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	replayPath := cli.StringP("replay", "r", "", "Feed an audio file instead of the microphone")
	silent := cli.BoolP("silent", "s", false, "Print replies instead of speaking them")
	noChime := cli.Bool("no-chime", false, "Do not play the wake chime")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[*logLevel],
		TimeFormat: time.TimeOnly,
	})))

	log.Info("Booting up")

	if err := godotenv.Load(*envFile); err != nil {
		log.Debug("No env file loaded", "path", *envFile, "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, flags{replay: *replayPath, silent: *silent, noChime: *noChime})
	if err != nil {
		log.Error("Stopped", "err", err)
		stop()
		os.Exit(1)
	}
	log.Info("Bye")
}

func run(ctx context.Context, cfg config.Config, fl flags) error {
	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	src, err := openSource(fl.replay)
	if err != nil {
		return err
	}
	tee := audio.NewTee(src)

	det, err := wake.Open(wake.Config{
		AccessKey:       cfg.Wake.AccessKey,
		Keyword:         cfg.Wake.Keyword,
		ModelPath:       cfg.Wake.KeywordPath,
		EngineModelPath: cfg.Wake.ModelPath,
		Sensitivity:     cfg.Wake.Sensitivity,
		SampleRate:      porcupine.SampleRate,
		FrameLength:     porcupine.FrameLength,
	}, porcupine.New, tee)
	if err != nil {
		src.Close()
		return err
	}
	defer det.Stop()

	log.Debug("Loaded wake detector")

	whisper, err := stt.NewTranscriber(cfg.Listen.WhisperModel)
	if err != nil {
		return fmt.Errorf("load whisper: %w", err)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper", "model", cfg.Listen.WhisperModel)

	rec := audio.NewRecorder(tee, audio.DefaultRecorderConfig(porcupine.SampleRate))
	lst := listen.New(rec, whisper, listen.Options{
		SampleRate: porcupine.SampleRate,
		STT:        stt.Options{Language: cfg.Listen.Language, Threads: cfg.Listen.Threads},
		DumpDir:    cfg.Listen.DumpDir,
	})
	capt := capture.New(lst, capture.Options{Timeout: cfg.Listen.Timeout, PhraseLimit: cfg.Listen.PhraseLimit})

	db, err := store.NewSQLiteStore(cfg.Paths.DB)
	if err != nil {
		return fmt.Errorf("open job ledger: %w", err)
	}
	defer db.Close()

	if n, err := db.MarkAbandoned(ctx); err != nil {
		log.Warn("Failed to mark abandoned jobs", "err", err)
	} else if n > 0 {
		log.Info("Marked jobs from a previous run as abandoned", "count", n)
	}

	runner := jobs.NewRunner(db, jobs.Options{})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runner.Shutdown(sctx); err != nil {
			log.Warn("Background jobs did not finish", "err", err)
		}
	}()

	disp, err := newDispatcher(cfg, runner)
	if err != nil {
		return err
	}

	var speaker session.Speaker = tts.NewEspeak(tts.Options{Voice: cfg.Voice.TTSVoice})
	if fl.silent {
		speaker = tts.NewConsole(os.Stdout)
	}

	chat, err := newChat(cfg.LLM)
	if err != nil {
		return err
	}

	opt := session.Options{UserName: cfg.Voice.UserName}
	if !fl.noChime {
		opt.Chime = loadChime(cfg.Voice.Chime)
	}
	if cfg.Voice.Duck && fl.replay == "" {
		opt.Ducker = audio.NewDucker([]string{"jarvis", "espeak", "espeak-ng"}, 0.3, 5, 200*time.Millisecond)
	}

	machine := session.New(det, capt, disp, speaker, chat, opt)
	machine.AddObserver(session.ObserverFunc(logTransition))

	if cfg.Paths.BusURL != "" {
		client, err := bus.Dial(ctx, cfg.Paths.BusURL, bus.Options{From: "jarvis"})
		if err != nil {
			log.Warn("Bus unavailable, continuing without it", "url", cfg.Paths.BusURL, "err", err)
		} else {
			defer client.Close()
			machine.AddObserver(client)
		}
	}

	srv, err := ipc.Listen(cfg.Paths.ControlSocket, control(machine, det, runner, shutdown))
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	defer srv.Close()

	log.Info("Boot up - successful", "keyword", det.Keyword(), "socket", srv.Path())

	machine.Greet(ctx)
	err = machine.Run(ctx)
	if errors.Is(err, wake.ErrStreamClosed) && fl.replay != "" {
		log.Info("Replay finished")
		return nil
	}
	return err
}

func openSource(replayPath string) (audio.Source, error) {
	if replayPath != "" {
		return replay.New(replayPath, replay.Options{
			SampleRate:  porcupine.SampleRate,
			FrameLength: porcupine.FrameLength,
			Realtime:    true,
			TrailingGap: 10 * time.Second,
		}), nil
	}
	m, err := mic.New(porcupine.SampleRate, porcupine.FrameLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", wake.ErrEngineInit, err)
	}
	return m, nil
}

func newDispatcher(cfg config.Config, runner *jobs.Runner) (*command.Dispatcher, error) {
	opt := command.DefaultOptions()
	opt.BaseDir = cfg.Paths.Home
	opt.OutputDir = cfg.Paths.OutputDir
	opt.PowerDelay = cfg.Commands.PowerDelay
	opt.RecordDuration = cfg.Commands.RecordDuration

	desktop := effects.NewDesktop(effects.Options{Apps: opt.TypingTargets})
	fx := command.Effects{
		Apps:     desktop,
		Keyboard: desktop,
		Opener:   desktop,
		Mixer:    desktop,
		Screen:   desktop,
		Power:    desktop,
		System:   effects.NewSystem(),
		Jobs:     runner,
	}
	return command.NewDispatcher(command.DefaultRules(fx, opt))
}

func newChat(cfg config.LLMConfig) (session.ChatModel, error) {
	if cfg.APIKey == "" {
		log.Warn("OPENAI_API_KEY not set, conversation is disabled")
		return llm.Offline{}, nil
	}

	opt := llm.Options{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}
	if cfg.SocksProxy != "" {
		httpClient, err := proxy.NewSocksClient(cfg.SocksProxy, 0)
		if err != nil {
			return nil, fmt.Errorf("socks proxy %s: %w", cfg.SocksProxy, err)
		}
		opt.HTTPClient = httpClient
		log.Debug("Loaded proxy", "proxy", cfg.SocksProxy)
	}
	return llm.New(opt), nil
}

func loadChime(path string) *notify.Chime {
	if path == "" {
		return notify.Tone(880, 150*time.Millisecond)
	}
	chime, err := notify.Load(path)
	if err != nil {
		log.Warn("Failed to load chime, using a tone", "path", path, "err", err)
		return notify.Tone(880, 150*time.Millisecond)
	}
	return chime
}

func logTransition(t session.Transition) {
	attrs := []any{"session", t.Session, "from", t.From, "to", t.To}
	if t.Transcript != "" && t.To == session.Dispatching {
		attrs = append(attrs, "text", t.Transcript)
	}
	if t.Rule != "" {
		attrs = append(attrs, "rule", t.Rule)
	}
	if t.Reply != "" {
		attrs = append(attrs, "reply", t.Reply)
	}
	log.Info("Session", attrs...)
}
