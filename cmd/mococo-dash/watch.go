package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// dbChangeMsg is sent when the event log database changes on disk.
type dbChangeMsg struct{}

// watchDebounce collapses the WAL write bursts SQLite produces per insert.
const watchDebounce = 500 * time.Millisecond

// watchEventsDB returns a tea.Cmd that blocks until the event log database
// changes, then emits dbChangeMsg. Returns nil when watching is impossible;
// the dashboard falls back to tick-based polling.
func watchEventsDB(dbPath string) tea.Cmd {
	if dbPath == "" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); err != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil
	}

	base := filepath.Base(dbPath)
	return func() tea.Msg {
		defer func() { _ = watcher.Close() }()

		debounce := time.NewTimer(watchDebounce)
		if !debounce.Stop() {
			<-debounce.C
		}
		defer debounce.Stop()

		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !isDBChange(ev, base) {
					continue
				}
				debounce.Reset(watchDebounce)
			case _, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
			case <-debounce.C:
				return dbChangeMsg{}
			}
		}
	}
}

// isDBChange reports whether the event touches the database or its WAL
// sidecar files.
func isDBChange(ev fsnotify.Event, base string) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(ev.Name)
	return name == base || strings.HasPrefix(name, base+"-")
}
