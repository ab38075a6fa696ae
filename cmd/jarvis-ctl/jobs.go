package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"jarvis/internal/jobs"
	"jarvis/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent background jobs from the ledger",
		Args:  cobra.NoArgs,
		Run:   runJobs,
	}
	cmd.Flags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $JARVIS_DB or ~/.local/share/jarvis/jarvis.db)")
	cmd.Flags().IntP("limit", "n", 20, "Number of jobs to show")
	rootCmd.AddCommand(cmd)
}

func runJobs(cmd *cobra.Command, _ []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := store.NewSQLiteStore(getDBPath())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	recs, err := s.RecentJobs(cmd.Context(), limit)
	if err != nil {
		exitErr("list jobs", err)
	}
	printJobs(os.Stdout, recs, time.Now())
}

func printJobs(w io.Writer, recs []jobs.Record, now time.Time) {
	if formatFlag == "json" {
		b, _ := json.MarshalIndent(recs, "", "  ")
		fmt.Fprintln(w, string(b))
		return
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "no jobs recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tSTARTED\tTOOK\tOUTPUT")
	for _, r := range recs {
		took := "-"
		if !r.Finished.IsZero() {
			took = r.Finished.Sub(r.Started).Round(time.Second).String()
		}
		status := string(r.Status)
		if r.Err != "" {
			status += ": " + r.Err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, status, humanize.RelTime(r.Started, now, "ago", "from now"), took, r.Output)
	}
	tw.Flush()
}
