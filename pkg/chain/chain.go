// Package chain tracks dispatch lineage: the budget and recent path of every
// worker-to-worker mention chain stemming from one root trigger. It stops
// runaway mention cycles (A mentions B, B mentions A, forever) while
// tolerating normal back-and-forth.
package chain

import (
	"sync"

	"github.com/google/uuid"
)

// Config holds the loop-detection and budget thresholds. The detection
// constants are heuristics tuned against false positives in ordinary
// conversation, so they are configuration, not hard-coded invariants.
type Config struct {
	// MaxBudget is the total number of reactive dispatches allowed in one
	// chain before further dispatch halts (default 20).
	MaxBudget int
	// Window is the number of recent path entries retained (default 6).
	// Older entries are dropped; only recent cycles matter.
	Window int
	// MinTrail is the minimum trail length before loop detection applies
	// (default 6). Shorter trails are insufficient evidence.
	MinTrail int
	// ShortPeriodRepeats is the repeat count required for a period-2 cycle
	// (default 3). Period-2 needs stricter evidence to avoid flagging
	// ordinary short exchanges.
	ShortPeriodRepeats int
	// LongPeriodRepeats is the repeat count required for periods > 2
	// (default 2).
	LongPeriodRepeats int
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	out := c
	if out.MaxBudget == 0 {
		out.MaxBudget = 20
	}
	if out.Window == 0 {
		out.Window = 6
	}
	if out.MinTrail == 0 {
		out.MinTrail = 6
	}
	if out.ShortPeriodRepeats == 0 {
		out.ShortPeriodRepeats = 3
	}
	if out.LongPeriodRepeats == 0 {
		out.LongPeriodRepeats = 2
	}
	return out
}

// Context is the per-chain state propagated through recursive dispatch.
// It is created fresh per root trigger and never shared across independent
// chains. Reactive dispatches from one invocation may run concurrently, so
// all methods are safe for concurrent use.
type Context struct {
	mu sync.Mutex

	id          string
	origin      string // channel of the root trigger, for one-time notices
	cfg         Config
	invocations int
	recent      *ring
	noticeSent  bool
}

// New creates a fresh chain rooted at the given channel.
func New(cfg Config, origin string) *Context {
	cfg = cfg.WithDefaults()
	return &Context{
		id:     uuid.NewString(),
		origin: origin,
		cfg:    cfg,
		recent: newRing(cfg.Window),
	}
}

// ID returns the chain's opaque token.
func (c *Context) ID() string { return c.id }

// Origin returns the channel of the chain's root trigger.
func (c *Context) Origin() string { return c.origin }

// Seed records the root worker on the recent path without consuming budget.
// Call once, for the worker handling the root trigger.
func (c *Context) Seed(worker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent.push(worker)
}

// Advance consumes one unit of budget and appends the dispatched worker to
// the recent path. Call once per successful reactive dispatch.
func (c *Context) Advance(worker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocations++
	c.recent.push(worker)
}

// Invocations returns the number of reactive dispatches so far.
func (c *Context) Invocations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invocations
}

// Exhausted reports whether the chain's dispatch budget is spent. Exceeding
// the budget is not an error, just a stop condition.
func (c *Context) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invocations >= c.cfg.MaxBudget
}

// BudgetNoticeOnce returns true the first time it is called after the budget
// is exhausted, so the originating leader gets at most one notice per chain.
func (c *Context) BudgetNoticeOnce() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noticeSent {
		return false
	}
	c.noticeSent = true
	return true
}

// Trail returns a copy of the recent path, oldest first.
func (c *Context) Trail() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recent.slice()
}

// DetectLoop reports whether dispatching nextWorker would continue a
// repeating cycle. The trail under test is the recent path plus nextWorker.
// For each candidate period p from 2 up to half the trail length, the last
// p*repeats elements are checked for a full cyclic match; period 2 requires
// ShortPeriodRepeats repeats, longer periods LongPeriodRepeats.
func (c *Context) DetectLoop(nextWorker string) bool {
	c.mu.Lock()
	trail := c.recent.slice()
	cfg := c.cfg
	c.mu.Unlock()

	trail = append(trail, nextWorker)
	if len(trail) < cfg.MinTrail {
		return false
	}

	for p := 2; p <= len(trail)/2; p++ {
		repeats := cfg.LongPeriodRepeats
		if p == 2 {
			repeats = cfg.ShortPeriodRepeats
		}
		needed := p * repeats
		if len(trail) < needed {
			continue
		}
		tail := trail[len(trail)-needed:]
		cycle := tail[:p]
		match := true
		for i, w := range tail {
			if w != cycle[i%p] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
