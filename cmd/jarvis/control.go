package main

import (
	"context"
	"fmt"
	log "log/slog"

	"jarvis/internal/ipc"
	"jarvis/internal/jobs"
	"jarvis/internal/session"
)

type machineState interface {
	State() session.State
	Current() (session.Session, bool)
}

type trigger interface {
	Trigger()
	Keyword() string
}

type activeJobs interface {
	Active() []*jobs.Handle
}

func control(m machineState, w trigger, r activeJobs, shutdown context.CancelFunc) ipc.Handler {
	return func(_ context.Context, req ipc.Request) ipc.Reply {
		switch req.Cmd {
		case ipc.CmdTrigger:
			log.Info("Wake triggered over control socket")
			w.Trigger()
			return ipc.Reply{OK: true, State: string(m.State())}

		case ipc.CmdStatus:
			reply := ipc.Reply{OK: true, State: string(m.State()), Keyword: w.Keyword()}
			if s, ok := m.Current(); ok {
				reply.Session = s.ID
			}
			for _, h := range r.Active() {
				reply.Jobs = append(reply.Jobs, ipc.Job{ID: h.ID, Kind: h.Kind, Output: h.Output, Started: h.Started})
			}
			return reply

		case ipc.CmdShutdown:
			log.Info("Shutdown requested over control socket")
			shutdown()
			return ipc.Reply{OK: true}

		default:
			log.Warn("Unknown command", "cmd", req.Cmd)
			return ipc.Reply{Error: fmt.Sprintf("unknown command %q", req.Cmd)}
		}
	}
}
