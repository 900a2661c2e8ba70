package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"mococo/pkg/concurrency"
	"mococo/pkg/coordinator"
	"mococo/pkg/eventlog"
	"mococo/pkg/ledger"
	"mococo/pkg/memfile"
	"mococo/pkg/roster"
)

// InboxWatchConfig tunes the inbox file watcher.
type InboxWatchConfig struct {
	// Debounce collapses bursts of inbox writes into one delivery
	// (default 2s).
	Debounce time.Duration
	// FallbackPoll is the safety-net poll interval when no file events
	// arrive (default 60s).
	FallbackPoll time.Duration
}

func (c InboxWatchConfig) withDefaults() InboxWatchConfig {
	out := c
	if out.Debounce == 0 {
		out.Debounce = 2 * time.Second
	}
	if out.FallbackPoll == 0 {
		out.FallbackPoll = 60 * time.Second
	}
	return out
}

// InboxWatch delivers the leader's inbox notes as an invocation shortly
// after they land on disk. Notes are urgent by definition (another
// component chose to write them), so delivery bypasses the heartbeat
// classifier.
type InboxWatch struct {
	cfg      InboxWatchConfig
	store    *memfile.Store
	roster   *roster.Roster
	registry *concurrency.Registry
	coord    Invoker
	events   EventLogger
}

// NewInboxWatch wires the inbox watcher.
func NewInboxWatch(cfg InboxWatchConfig, store *memfile.Store, ros *roster.Roster, reg *concurrency.Registry, coord Invoker, events EventLogger) *InboxWatch {
	return &InboxWatch{
		cfg:      cfg.withDefaults(),
		store:    store,
		roster:   ros,
		registry: reg,
		coord:    coord,
		events:   events,
	}
}

// Start runs the watch loop until ctx is canceled. Falls back to pure
// polling if fsnotify cannot watch the memory directory.
func (w *InboxWatch) Start(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.pollLoop(ctx)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.store.Dir()); err != nil {
		w.pollLoop(ctx)
		return
	}

	fallback := time.NewTicker(w.cfg.FallbackPoll)
	defer fallback.Stop()

	// Debounce timer starts stopped; each inbox write rearms it.
	debounce := time.NewTimer(w.cfg.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-watcher.Events:
			if !isInboxWrite(ev) {
				continue
			}
			debounce.Reset(w.cfg.Debounce)
		case err := <-watcher.Errors:
			if err != nil {
				_ = w.events.Log(ctx, eventlog.TypeWatcherError, "inboxwatch", "", "",
					fmt.Sprintf(`{"error":%q}`, err.Error()))
			}
		case <-debounce.C:
			w.Deliver(ctx)
		case <-fallback.C:
			w.Deliver(ctx)
		}
	}
}

func (w *InboxWatch) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FallbackPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Deliver(ctx)
		}
	}
}

func isInboxWrite(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
		return false
	}
	return strings.HasSuffix(ev.Name, ".inbox.jsonl")
}

// Deliver drains the leader's inbox into one invocation. A busy or queued
// leader keeps its notes on disk for the next attempt.
func (w *InboxWatch) Deliver(ctx context.Context) {
	leader := w.roster.Leader()
	if leader == nil {
		return
	}
	if w.registry.IsBusy(leader.Name) || w.registry.IsQueued(leader.Name) {
		return
	}
	if !w.store.InboxNonEmpty(leader.Name) {
		return
	}

	notes, err := w.store.DrainInbox(leader.Name)
	if err != nil {
		_ = w.events.Log(ctx, eventlog.TypeWatcherError, "inboxwatch", leader.Name, "",
			fmt.Sprintf(`{"error":%q}`, err.Error()))
		return
	}
	if len(notes) == 0 {
		return
	}

	ch := w.coord.NewChain(leader.Channel)
	ch.Seed(leader.Name)
	trig := coordinator.Trigger{
		Channel: leader.Channel,
		From:    ledger.SystemFrom,
		Text:    "New inbox notes:\n" + memfile.FormatNotes(notes),
	}
	_ = w.events.Log(ctx, eventlog.TypePulse, "inboxwatch", leader.Name, ch.ID(),
		fmt.Sprintf(`{"notes":%d}`, len(notes)))
	_ = w.coord.Invoke(ctx, leader, trig, ch)
}
