// Command jarvis-monitor is a bus hub that prints what jarvis is doing.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"jarvis/internal/bus"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	addr := cli.StringP("addr", "a", "127.0.0.1:8092", "Listen address")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[*logLevel],
		TimeFormat: time.TimeOnly,
	})))

	mux := http.NewServeMux()
	mux.Handle("/ws", bus.NewHub(printMessage))

	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	log.Info("Monitor listening", "url", "ws://"+*addr+"/ws")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Monitor failed", "err", err)
		os.Exit(1)
	}
}

func printMessage(m bus.Message) {
	t := m.Transition
	if t == nil {
		log.Info("Message", "from", m.From, "kind", m.Kind, "content", m.Content)
		return
	}

	attrs := []any{"session", t.Session, "to", t.To}
	if t.Transcript != "" {
		attrs = append(attrs, "heard", t.Transcript)
	}
	if t.Rule != "" {
		attrs = append(attrs, "rule", t.Rule)
	}
	if t.Reply != "" {
		attrs = append(attrs, "reply", t.Reply)
	}
	log.Info(m.From, attrs...)
}
