package main

import (
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"mococo/pkg/eventlog"
)

func TestEventRows(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	rows := eventRows([]eventlog.Event{
		{Type: "dispatch", WorkerID: "bob", Payload: `{"from":"alice"}`, CreatedAt: now},
		{Type: "pulse", Payload: `{}`, CreatedAt: now},
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][1] != "dispatch" || rows[0][2] != "bob" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1][2] != "-" {
		t.Errorf("empty worker should render as dash, got %q", rows[1][2])
	}
}

func TestSummaryLine(t *testing.T) {
	if got := summaryLine(nil); got != "no events in the last 24h" {
		t.Errorf("empty summary = %q", got)
	}

	got := summaryLine(map[string]int{
		"dispatch":    3,
		"nudge":       1,
		"scan_skip":   7,
		"invoke_done": 5,
	})
	for _, want := range []string{"invoke_done 5", "dispatch 3", "nudge 1", "other 7"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary %q missing %q", got, want)
		}
	}
}

func TestEventColumnsAdaptToWidth(t *testing.T) {
	cols := eventColumns(60)
	if cols[3].Width != 20 {
		t.Errorf("narrow payload width = %d, want floor of 20", cols[3].Width)
	}
	cols = eventColumns(160)
	if cols[3].Width <= 20 {
		t.Errorf("wide payload width = %d, want > 20", cols[3].Width)
	}
}

func TestIsDBChange(t *testing.T) {
	cases := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"db write", fsnotify.Event{Name: "/h/events.db", Op: fsnotify.Write}, true},
		{"wal write", fsnotify.Event{Name: "/h/events.db-wal", Op: fsnotify.Write}, true},
		{"other file", fsnotify.Event{Name: "/h/notes.txt", Op: fsnotify.Write}, false},
		{"db remove", fsnotify.Event{Name: "/h/events.db", Op: fsnotify.Remove}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isDBChange(tc.ev, "events.db"); got != tc.want {
				t.Errorf("isDBChange = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWatchEventsDBMissingDirFallsBack(t *testing.T) {
	if cmd := watchEventsDB("/nonexistent-dir-for-test/events.db"); cmd != nil {
		t.Error("expected nil cmd for missing directory")
	}
	if cmd := watchEventsDB(""); cmd != nil {
		t.Error("expected nil cmd for empty path")
	}
}
