package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"mococo/pkg/eventlog"
)

// newStatusCmd creates the "mococo status" subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler state",
		Long:  "Displays whether the scheduler is running and a summary of event\nactivity over the last 24 hours.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}

			status, pid, err := DaemonStatus(paths.PIDPath)
			if err != nil {
				return err
			}
			switch status {
			case StatusRunning:
				fmt.Fprintf(cmd.OutOrStdout(), "scheduler: running (PID %d)\n", pid)
			case StatusStale:
				fmt.Fprintf(cmd.OutOrStdout(), "scheduler: stale PID file (PID %d is dead)\n", pid)
			case StatusStopped:
				fmt.Fprintln(cmd.OutOrStdout(), "scheduler: stopped")
			}

			reader, err := eventlog.NewReader(paths.EventsDB)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no event log yet")
				return nil //nolint:nilerr // missing event log is a fresh install, not a failure
			}
			defer func() { _ = reader.Close() }()

			since := time.Now().Add(-24 * time.Hour)
			counts, err := reader.CountByType(cmd.Context(), &since)
			if err != nil {
				return fmt.Errorf("count events: %w", err)
			}
			if len(counts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no events in the last 24h")
				return nil
			}

			types := make([]string, 0, len(counts))
			for t := range counts {
				types = append(types, t)
			}
			sort.Strings(types)

			fmt.Fprintln(cmd.OutOrStdout(), "events (24h):")
			for _, t := range types {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-18s %d\n", t, counts[t])
			}
			return nil
		},
	}
}
