package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mococo/pkg/concurrency"
	"mococo/pkg/coordinator"
	"mococo/pkg/eventlog"
	"mococo/pkg/ledger"
	"mococo/pkg/memfile"
	"mococo/pkg/roster"
)

// PendingScanConfig tunes the pending-task scan over worker memory files.
type PendingScanConfig struct {
	// Cooldown is the minimum gap between scan-triggered invocations of
	// the same worker (default 2h).
	Cooldown time.Duration
	// CycleCap bounds invocations fired per scan pass (default 2).
	CycleCap int
}

func (c PendingScanConfig) withDefaults() PendingScanConfig {
	out := c
	if out.Cooldown == 0 {
		out.Cooldown = 2 * time.Hour
	}
	if out.CycleCap == 0 {
		out.CycleCap = 2
	}
	return out
}

// PendingScan walks the non-leader workers' memory files and restarts work
// that is actionable but idle. The per-worker cooldown and per-cycle cap
// keep the scan from dominating engine time.
type PendingScan struct {
	cfg      PendingScanConfig
	store    *memfile.Store
	roster   *roster.Roster
	registry *concurrency.Registry
	coord    Invoker
	events   EventLogger

	mu      sync.Mutex
	lastRun map[string]time.Time

	nowFunc func() time.Time
}

// NewPendingScan wires the pending-task scanner.
func NewPendingScan(cfg PendingScanConfig, store *memfile.Store, ros *roster.Roster, reg *concurrency.Registry, coord Invoker, events EventLogger) *PendingScan {
	return &PendingScan{
		cfg:      cfg.withDefaults(),
		store:    store,
		roster:   ros,
		registry: reg,
		coord:    coord,
		events:   events,
		lastRun:  make(map[string]time.Time),
		nowFunc:  time.Now,
	}
}

// Run performs one scan pass.
func (p *PendingScan) Run(ctx context.Context) {
	now := p.nowFunc()
	fired := 0
	for _, w := range p.roster.NonLeaders() {
		if fired >= p.cfg.CycleCap {
			return
		}
		if p.onCooldown(w.Name, now) {
			continue
		}
		if p.registry.IsBusy(w.Name) || p.registry.IsQueued(w.Name) {
			_ = p.events.Log(ctx, eventlog.TypeScanSkip, "pendingscan", w.Name, "", `{"reason":"occupied"}`)
			continue
		}
		tasks, err := p.store.PendingTasks(w.Name)
		if err != nil {
			_ = p.events.Log(ctx, eventlog.TypeWatcherError, "pendingscan", w.Name, "",
				fmt.Sprintf(`{"error":%q}`, err.Error()))
			continue
		}
		if len(tasks) == 0 {
			continue
		}

		task := tasks[0]
		channel := task.Channel
		if channel == "" {
			channel = w.Channel
		}
		p.markRun(w.Name, now)
		fired++

		ch := p.coord.NewChain(channel)
		ch.Seed(w.Name)
		trig := coordinator.Trigger{
			Channel: channel,
			From:    ledger.SystemFrom,
			Text:    "You have a pending task in your notes that looks actionable. Pick it up:\n" + task.Text,
		}
		_ = p.events.Log(ctx, eventlog.TypeScanInvoke, "pendingscan", w.Name, ch.ID(),
			fmt.Sprintf(`{"task":%q}`, task.Text))
		_ = p.coord.Invoke(ctx, w, trig, ch)
	}
}

func (p *PendingScan) onCooldown(worker string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastRun[worker]
	return ok && now.Sub(last) < p.cfg.Cooldown
}

func (p *PendingScan) markRun(worker string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRun[worker] = now
}
