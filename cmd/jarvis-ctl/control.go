package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"jarvis/internal/ipc"
)

func init() {
	for _, c := range []struct{ cmd, short string }{
		{ipc.CmdTrigger, "Start listening as if the wake word was spoken"},
		{ipc.CmdStatus, "Show the session state and running jobs"},
		{ipc.CmdShutdown, "Stop jarvis"},
	} {
		rootCmd.AddCommand(&cobra.Command{
			Use:   c.cmd,
			Short: c.short,
			Args:  cobra.NoArgs,
			Run:   runControl,
		})
	}
}

func runControl(cmd *cobra.Command, _ []string) {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	reply, err := ipc.Send(ctx, getSocketPath(), cmd.Name())
	if err != nil {
		exitErr("jarvis not running or refused "+cmd.Name(), err)
	}
	printReply(os.Stdout, cmd.Name(), reply, time.Now())
}

func printReply(w io.Writer, name string, reply ipc.Reply, now time.Time) {
	if formatFlag == "json" {
		b, _ := json.MarshalIndent(reply, "", "  ")
		fmt.Fprintln(w, string(b))
		return
	}

	if name != ipc.CmdStatus {
		fmt.Fprintln(w, "ok")
		return
	}

	fmt.Fprintf(w, "state:   %s\n", reply.State)
	fmt.Fprintf(w, "keyword: %s\n", reply.Keyword)
	if reply.Session != "" {
		fmt.Fprintf(w, "session: %s\n", reply.Session)
	}
	if len(reply.Jobs) == 0 {
		fmt.Fprintln(w, "jobs:    none")
		return
	}
	fmt.Fprintln(w, "jobs:")
	for _, j := range reply.Jobs {
		fmt.Fprintf(w, "  %s  %-14s started %s  %s\n", j.ID, j.Kind, humanize.RelTime(j.Started, now, "ago", "from now"), j.Output)
	}
}
