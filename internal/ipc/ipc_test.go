package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func socketPath(t *testing.T) string {
	// unix socket paths are short; t.TempDir can exceed the limit
	dir, err := os.MkdirTemp("", "jv")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "c.sock")
}

func TestRoundTrip(t *testing.T) {
	path := socketPath(t)
	got := make(chan string, 4)
	srv, err := Listen(path, func(_ context.Context, req Request) Reply {
		got <- req.Cmd
		switch req.Cmd {
		case CmdStatus:
			return Reply{OK: true, State: "waiting_for_wake", Keyword: "jarvis"}
		case CmdTrigger:
			return Reply{OK: true}
		default:
			return Reply{Error: "unknown command"}
		}
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := Send(ctx, path, CmdStatus)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !reply.OK || reply.State != "waiting_for_wake" || reply.Keyword != "jarvis" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if cmd := <-got; cmd != CmdStatus {
		t.Fatalf("handler got %q", cmd)
	}

	if _, err := Send(ctx, path, "dance"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestStaleSocketReplaced(t *testing.T) {
	path := socketPath(t)
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	srv, err := Listen(path, func(context.Context, Request) Reply { return Reply{OK: true} })
	if err != nil {
		t.Fatalf("listen over stale file: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	srv.Close()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("socket not removed: %v", err)
	}
}

func TestSendWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Send(ctx, socketPath(t), CmdTrigger); err == nil {
		t.Fatal("expected dial error")
	}
}
