// Package ledger implements the dispatch ledger: an append-only, bounded
// record of who dispatched whom, so dispatched-but-unanswered work can be
// followed up and escalated. Records live only in memory; the follow-up loop
// re-derives anything lost on restart from external state.
package ledger

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// SystemFrom is the sender recorded for system-originated dispatches. They
// cannot be mentioned back, so any response from the target auto-resolves
// them.
const SystemFrom = "system"

// reasonLimit caps the stored reason text.
const reasonLimit = 200

// Record is one tracked unit of dispatched-but-not-yet-confirmed work.
// Resolved is monotonic: once true it never reverts, and ResolvedAt is set
// exactly when that transition happens (zero otherwise).
type Record struct {
	ID           string
	ChainID      string
	From         string
	To           string
	Channel      string
	Reason       string
	DispatchedAt time.Time
	Resolved     bool
	ResolvedAt   time.Time

	// Nudge bookkeeping for the follow-up loop.
	Nudges    int
	LastNudge time.Time
}

// Config holds the ledger's retention thresholds.
type Config struct {
	// SoftCutoff is the age below which resolved records are still retained
	// for inspection (default 1h). Records older than 3x SoftCutoff are
	// force-evicted regardless of resolution state, so an unresolved record
	// cannot pin memory forever.
	SoftCutoff time.Duration
	// MaxRecords caps total stored records; the oldest are evicted first
	// (default 500).
	MaxRecords int
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	out := c
	if out.SoftCutoff == 0 {
		out.SoftCutoff = time.Hour
	}
	if out.MaxRecords == 0 {
		out.MaxRecords = 500
	}
	return out
}

// HardCutoff is the force-eviction age: three times the soft cutoff.
func (c Config) HardCutoff() time.Duration {
	return 3 * c.SoftCutoff
}

// Ledger stores dispatch records in insertion order.
type Ledger struct {
	mu      sync.Mutex
	cfg     Config
	records []*Record

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates an empty ledger.
func New(cfg Config) *Ledger {
	return &Ledger{
		cfg:     cfg.WithDefaults(),
		nowFunc: time.Now,
	}
}

// Record appends a new unresolved dispatch record and returns a copy of it.
// The reason is truncated to 200 characters. If the ledger is at capacity
// the oldest record is evicted.
func (l *Ledger) Record(chainID, from, to, channel, reason string) Record {
	if len(reason) > reasonLimit {
		// Back up to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := reasonLimit
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r := &Record{
		ID:           uuid.NewString(),
		ChainID:      chainID,
		From:         from,
		To:           to,
		Channel:      channel,
		Reason:       reason,
		DispatchedAt: l.nowFunc(),
	}
	if len(l.records) >= l.cfg.MaxRecords {
		over := len(l.records) - l.cfg.MaxRecords + 1
		l.records = append(l.records[:0:0], l.records[over:]...)
	}
	l.records = append(l.records, r)
	return *r
}

// Resolve marks every unresolved record targeting toWorker as resolved,
// provided the responder's output mentioned the original sender (or the
// sender was the system, which cannot be mentioned back). Returns the number
// of records resolved.
func (l *Ledger) Resolve(toWorker string, mentioned []string) int {
	names := make(map[string]struct{}, len(mentioned))
	for _, m := range mentioned {
		names[m] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	resolved := 0
	now := l.nowFunc()
	for _, r := range l.records {
		if r.Resolved || r.To != toWorker {
			continue
		}
		if r.From != SystemFrom {
			if _, ok := names[r.From]; !ok {
				continue
			}
		}
		r.Resolved = true
		r.ResolvedAt = now
		resolved++
	}
	return resolved
}

// ResolveByID marks a single record resolved. Resolving twice is a no-op;
// unknown IDs are ignored. Returns whether a transition happened.
func (l *Ledger) ResolveByID(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.records {
		if r.ID != id {
			continue
		}
		if r.Resolved {
			return false
		}
		r.Resolved = true
		r.ResolvedAt = l.nowFunc()
		return true
	}
	return false
}

// RecordNudge increments the nudge counter on a record and stamps the nudge
// time. Unknown or resolved records are no-ops.
func (l *Ledger) RecordNudge(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.records {
		if r.ID == id && !r.Resolved {
			r.Nudges++
			r.LastNudge = l.nowFunc()
			return
		}
	}
}

// Unresolved returns copies of all unresolved records at least olderThan old,
// oldest first. olderThan of zero returns every unresolved record.
func (l *Ledger) Unresolved(olderThan time.Duration) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	var out []Record
	for _, r := range l.records {
		if r.Resolved {
			continue
		}
		if olderThan > 0 && now.Sub(r.DispatchedAt) < olderThan {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// Get returns a copy of the record with the given ID.
func (l *Ledger) Get(id string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.records {
		if r.ID == id {
			return *r, true
		}
	}
	return Record{}, false
}

// Len returns the number of stored records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Sweep evicts expired records: resolved records older than the soft cutoff,
// and any record older than the hard cutoff regardless of resolution state.
// Returns the number of records evicted.
func (l *Ledger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	kept := l.records[:0]
	evicted := 0
	for _, r := range l.records {
		age := now.Sub(r.DispatchedAt)
		switch {
		case age > l.cfg.HardCutoff():
			evicted++
		case r.Resolved && age > l.cfg.SoftCutoff:
			evicted++
		default:
			kept = append(kept, r)
		}
	}
	l.records = kept
	return evicted
}
