package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"mococo/pkg/eventlog"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	tail   int
	follow bool
}

// newLogsCmd creates the "mococo logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs [worker]",
		Short: "Query and tail scheduler events",
		Long:  "Displays events from the scheduler event log.\nOptionally filter by worker and follow new events.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var worker string
			if len(args) == 1 {
				worker = args[0]
			}

			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			reader, err := eventlog.NewReader(paths.EventsDB)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer func() { _ = reader.Close() }()

			w := cmd.OutOrStdout()
			if cfg.follow {
				return followLogs(cmd.Context(), reader, w, worker, cfg.tail)
			}
			return printLogs(cmd.Context(), reader, w, worker, cfg.tail)
		},
	}

	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show")
	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "poll for new events every 1s")

	return cmd
}

// printLogs displays the last N events, oldest first.
func printLogs(ctx context.Context, reader *eventlog.Reader, w io.Writer, worker string, tail int) error {
	events, err := reader.Query(ctx, eventlog.QueryOpts{WorkerID: worker, Limit: tail})
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return nil
	}
	for i := len(events) - 1; i >= 0; i-- {
		printEvent(w, events[i])
	}
	return nil
}

// followLogs prints the tail then polls for new events until ctx is done.
func followLogs(ctx context.Context, reader *eventlog.Reader, w io.Writer, worker string, tail int) error {
	if err := printLogs(ctx, reader, w, worker, tail); err != nil {
		return err
	}

	var lastID int64
	if events, err := reader.Query(ctx, eventlog.QueryOpts{WorkerID: worker, Limit: 1}); err == nil && len(events) > 0 {
		lastID = events[0].ID
	}

	lastSeen := time.Now().Add(-time.Minute)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			events, err := reader.Query(ctx, eventlog.QueryOpts{WorkerID: worker, After: &lastSeen})
			if err != nil {
				return fmt.Errorf("query events: %w", err)
			}
			// After is inclusive at second resolution, so dedupe by row id.
			for i := len(events) - 1; i >= 0; i-- {
				if events[i].ID <= lastID {
					continue
				}
				printEvent(w, events[i])
				lastID = events[i].ID
				lastSeen = events[i].CreatedAt
			}
		}
	}
}

func printEvent(w io.Writer, ev eventlog.Event) {
	worker := ev.WorkerID
	if worker == "" {
		worker = "-"
	}
	fmt.Fprintf(w, "%s  %-16s %-12s %s\n",
		ev.CreatedAt.Format("15:04:05"), ev.Type, worker, ev.Payload)
}
