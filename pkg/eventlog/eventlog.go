// Package eventlog records every scheduler decision into a SQLite event
// table and provides read-only query access for the CLI and dashboard. The
// log is write-only observability output: the scheduler never reads it back
// to recover state.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// Event type constants written by the scheduler.
const (
	TypeInvokeStart     = "invoke_start"
	TypeInvokeDone      = "invoke_done"
	TypeInvokeError     = "invoke_error"
	TypeDispatch        = "dispatch"
	TypeDispatchDrop    = "dispatch_drop"
	TypeLoopStop        = "loop_stop"
	TypeBudgetStop      = "budget_stop"
	TypeResolve         = "resolve"
	TypeNudge           = "nudge"
	TypeEscalate        = "escalate"
	TypeAutoResolve     = "auto_resolve"
	TypeLedgerSweep     = "ledger_sweep"
	TypeInboxHeal       = "inbox_heal"
	TypeHeartbeatSkip   = "heartbeat_skip"
	TypeClassifierError = "classifier_error"
	TypeScanInvoke      = "scan_invoke"
	TypeScanSkip        = "scan_skip"
	TypePulse           = "pulse"
	TypeWatcherError    = "watcher_error"
)

// SchemaDDL defines the SQLite schema for the scheduler event log.
const SchemaDDL = `
-- Scheduler decision log: one row per dispatch/trigger decision
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    worker_id TEXT,
    chain_id TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS events_worker_idx ON events(worker_id, id);
CREATE INDEX IF NOT EXISTS events_type_idx ON events(type, id);
`

// Writer appends events to the log.
type Writer struct {
	db *sql.DB
}

// Open opens (creating if needed) the event log database at path with WAL
// journaling and initializes the schema.
func Open(path string) (*Writer, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if _, err := db.Exec(SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event log schema: %w", err)
	}
	return &Writer{db: db}, nil
}

// NewWriter wraps an existing database handle. The schema must already be
// initialized; used by tests with in-memory databases.
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// Log appends one event row. Callers on best-effort paths discard the error.
func (w *Writer) Log(ctx context.Context, evType, source, workerID, chainID, payload string) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO events (type, source, worker_id, chain_id, payload) VALUES (?, ?, ?, ?, ?)`,
		evType, source, workerID, chainID, payload)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (w *Writer) Close() error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}
