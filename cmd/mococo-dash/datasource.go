package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"mococo/pkg/eventlog"
)

// fetchLimit is how many recent events one refresh pulls.
const fetchLimit = 200

// defaultDBPath returns the event log path from env or ~/.mococo/events.db.
func defaultDBPath() string {
	if v := os.Getenv("MOCOCO_DB_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	base := filepath.Join(home, ".mococo")
	if v := os.Getenv("MOCOCO_HOME"); v != "" {
		base = v
	}
	return filepath.Join(base, "events.db")
}

// fetchEvents loads the most recent events, newest first. A missing or
// unreadable database yields an empty slice; the dashboard shows a
// placeholder instead of dying.
func fetchEvents(ctx context.Context, dbPath string) []eventlog.Event {
	reader, err := eventlog.NewReader(dbPath)
	if err != nil {
		return nil
	}
	defer func() { _ = reader.Close() }()

	events, err := reader.Query(ctx, eventlog.QueryOpts{Limit: fetchLimit})
	if err != nil {
		return nil
	}
	return events
}

// fetchCounts loads per-type event counts over the last 24 hours.
func fetchCounts(ctx context.Context, dbPath string) map[string]int {
	reader, err := eventlog.NewReader(dbPath)
	if err != nil {
		return nil
	}
	defer func() { _ = reader.Close() }()

	since := time.Now().Add(-24 * time.Hour)
	counts, err := reader.CountByType(ctx, &since)
	if err != nil {
		return nil
	}
	return counts
}
