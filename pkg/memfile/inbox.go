package memfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Note is one leader-inbox entry. The inbox file is JSON lines, one note
// per line, appended by the scheduler and by external tooling.
type Note struct {
	At   time.Time `json:"at"`
	From string    `json:"from"`
	Text string    `json:"text"`
}

// healThreshold is the corrupt-line fraction at which the inbox file is
// rewritten keeping only valid notes instead of failing the whole read.
const healThreshold = 0.3

// InboxPath returns the inbox file path for a worker.
func (s *Store) InboxPath(worker string) string {
	return filepath.Join(s.dir, strings.ToLower(worker)+".inbox.jsonl")
}

// AppendNote appends a note to a worker's inbox. The store directory is
// created on first use.
func (s *Store) AppendNote(worker, from, text string) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	n := Note{At: s.nowFunc(), From: from, Text: text}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal inbox note: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.InboxPath(worker), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // path derives from store dir + roster name
	if err != nil {
		return fmt.Errorf("open inbox for %s: %w", worker, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append inbox note for %s: %w", worker, err)
	}
	return nil
}

// ReadInbox reads a worker's inbox notes. Corrupt lines are skipped; when at
// least 30% of non-empty lines are corrupt the file is rewritten keeping
// only the valid notes (self-healing). The healed count reports how many
// corrupt lines were dropped by a rewrite, zero otherwise.
func (s *Store) ReadInbox(worker string) (notes []Note, healed int, err error) {
	path := s.InboxPath(worker)
	data, err := os.ReadFile(path) //nolint:gosec // path derives from store dir + roster name
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read inbox for %s: %w", worker, err)
	}

	var valid []string
	total := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		var n Note
		if json.Unmarshal([]byte(line), &n) != nil {
			continue
		}
		notes = append(notes, n)
		valid = append(valid, line)
	}

	corrupt := total - len(valid)
	if total > 0 && float64(corrupt)/float64(total) >= healThreshold {
		rewritten := ""
		if len(valid) > 0 {
			rewritten = strings.Join(valid, "\n") + "\n"
		}
		if werr := os.WriteFile(path, []byte(rewritten), 0o600); werr == nil {
			healed = corrupt
		}
	}
	return notes, healed, nil
}

// InboxNonEmpty reports whether the worker's inbox holds at least one valid
// note.
func (s *Store) InboxNonEmpty(worker string) bool {
	notes, _, err := s.ReadInbox(worker)
	return err == nil && len(notes) > 0
}

// DrainInbox reads and clears a worker's inbox in one step, returning the
// notes that were present. Used when the leader is invoked with its inbox
// content so the same notes do not re-trigger the next cycle.
func (s *Store) DrainInbox(worker string) ([]Note, error) {
	notes, _, err := s.ReadInbox(worker)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, nil
	}
	if err := os.WriteFile(s.InboxPath(worker), nil, 0o600); err != nil {
		return notes, fmt.Errorf("clear inbox for %s: %w", worker, err)
	}
	return notes, nil
}

// FormatNotes renders inbox notes as a bulleted summary for prompts.
func FormatNotes(notes []Note) string {
	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", n.At.Format("15:04"), n.From, n.Text)
	}
	return b.String()
}
