// Package memfile is the read-side boundary to the external memory store:
// one plain-text file per worker with recognized section markers, plus a
// JSONL inbox file for the leader. The scheduler consumes this contract but
// does not own the format; parsing lives here so no call site re-derives the
// markers with ad-hoc pattern matching.
package memfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// PendingTask is one actionable entry from a worker's pending section.
type PendingTask struct {
	Text    string // task text with the channel tag stripped
	Channel string // destination channel from the #ch:<id> tag
}

// channelTag matches the destination-channel marker in a pending line.
var channelTag = regexp.MustCompile(`#ch:([A-Za-z0-9_-]+)`)

// scheduleTag matches a future-dated schedule marker: [after:YYYY-MM-DD].
var scheduleTag = regexp.MustCompile(`\[after:(\d{4}-\d{2}-\d{2})\]`)

// skipMarkers are explicit not-actionable markers.
var skipMarkers = []string{"[blocked]", "[waiting]"}

// skipPhrases are natural-language signals that a task is not actionable
// right now: already handed off, waiting on someone, or finished.
var skipPhrases = []string{
	"awaiting approval",
	"awaiting review",
	"waiting for",
	"waiting on",
	"reported complete",
	"already done",
	"on hold",
}

// pendingSection is the recognized section heading for pending items.
const pendingSection = "## Pending"

// Store reads worker memory files and the leader inbox under one directory.
type Store struct {
	dir string

	// nowFunc allows tests to control time for schedule markers.
	nowFunc func() time.Time
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, nowFunc: time.Now}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// MemoryPath returns the memory file path for a worker.
func (s *Store) MemoryPath(worker string) string {
	return filepath.Join(s.dir, strings.ToLower(worker)+".md")
}

// PendingTasks reads a worker's memory file and returns its actionable
// pending entries. A missing file is not an error: the worker simply has no
// pending work.
func (s *Store) PendingTasks(worker string) ([]PendingTask, error) {
	data, err := os.ReadFile(s.MemoryPath(worker)) //nolint:gosec // path derives from store dir + roster name
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read memory file for %s: %w", worker, err)
	}
	return ParsePending(string(data), s.nowFunc()), nil
}

// ParsePending extracts actionable tasks from the pending section of a
// memory file. A line is actionable when it is a list entry carrying a
// #ch:<id> destination tag and no skip signal applies: explicit blocked or
// waiting markers, a future-dated [after:...] schedule marker, or a
// completion/waiting phrase.
func ParsePending(content string, now time.Time) []PendingTask {
	var tasks []PendingTask
	for _, line := range sectionLines(content, pendingSection) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		entry := strings.TrimSpace(strings.TrimPrefix(line, "- "))

		m := channelTag.FindStringSubmatch(entry)
		if m == nil {
			continue
		}
		if skipPending(entry, now) {
			continue
		}

		text := strings.TrimSpace(channelTag.ReplaceAllString(entry, ""))
		tasks = append(tasks, PendingTask{Text: text, Channel: m[1]})
	}
	return tasks
}

// skipPending reports whether a pending entry is not actionable right now.
func skipPending(entry string, now time.Time) bool {
	lower := strings.ToLower(entry)
	for _, m := range skipMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	for _, p := range skipPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	if m := scheduleTag.FindStringSubmatch(entry); m != nil {
		at, err := time.Parse("2006-01-02", m[1])
		if err == nil && at.After(now) {
			return true
		}
		// Unparsable dates fall through: the marker is malformed, treat the
		// entry as actionable rather than silently dropping it forever.
	}
	return false
}

// sectionLines returns the lines of the named "## " section, exclusive of
// the heading, up to the next section heading or end of file.
func sectionLines(content, heading string) []string {
	var out []string
	in := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			in = strings.EqualFold(trimmed, heading)
			continue
		}
		if in {
			out = append(out, line)
		}
	}
	return out
}
