package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"mococo/pkg/concurrency"
	"mococo/pkg/coordinator"
	"mococo/pkg/engine"
	"mococo/pkg/eventlog"
	"mococo/pkg/ledger"
	"mococo/pkg/memfile"
	"mococo/pkg/roster"
)

// HeartbeatConfig tunes the heartbeat producer.
type HeartbeatConfig struct {
	// StaleAfter is how old an unresolved dispatch must be before the
	// classifier hears about it (default 10m).
	StaleAfter time.Duration
}

func (c HeartbeatConfig) withDefaults() HeartbeatConfig {
	out := c
	if out.StaleAfter == 0 {
		out.StaleAfter = 10 * time.Minute
	}
	return out
}

// Heartbeat periodically asks the classifier whether the leader has anything
// worth waking up for: queued inbox notes, stale dispatches, or worker
// reports. Only an INVOKE verdict spends an actual engine invocation.
type Heartbeat struct {
	cfg        HeartbeatConfig
	classifier engine.Classifier
	coord      Invoker
	roster     *roster.Roster
	registry   *concurrency.Registry
	ledger     *ledger.Ledger
	store      *memfile.Store
	events     EventLogger

	// running guards against overlapping beats when one classify call
	// outlives the interval.
	running atomic.Bool
}

// NewHeartbeat wires the heartbeat producer.
func NewHeartbeat(cfg HeartbeatConfig, cl engine.Classifier, coord Invoker, ros *roster.Roster, reg *concurrency.Registry, led *ledger.Ledger, store *memfile.Store, events EventLogger) *Heartbeat {
	return &Heartbeat{
		cfg:        cfg.withDefaults(),
		classifier: cl,
		coord:      coord,
		roster:     ros,
		registry:   reg,
		ledger:     led,
		store:      store,
		events:     events,
	}
}

// Run performs one beat. A beat that finds the previous one still running,
// or the leader occupied, is skipped outright. A classifier failure skips
// the cycle rather than invoking blind.
func (h *Heartbeat) Run(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		_ = h.events.Log(ctx, eventlog.TypeHeartbeatSkip, "heartbeat", "", "", `{"reason":"previous beat running"}`)
		return
	}
	defer h.running.Store(false)

	leader := h.roster.Leader()
	if leader == nil {
		return
	}
	if h.registry.IsBusy(leader.Name) || h.registry.IsQueued(leader.Name) {
		_ = h.events.Log(ctx, eventlog.TypeHeartbeatSkip, "heartbeat", leader.Name, "", `{"reason":"leader occupied"}`)
		return
	}

	notes, healed, err := h.store.ReadInbox(leader.Name)
	if err != nil {
		_ = h.events.Log(ctx, eventlog.TypeWatcherError, "heartbeat", leader.Name, "",
			fmt.Sprintf(`{"error":%q}`, err.Error()))
		return
	}
	if healed > 0 {
		_ = h.events.Log(ctx, eventlog.TypeInboxHeal, "heartbeat", leader.Name, "",
			fmt.Sprintf(`{"dropped":%d}`, healed))
	}

	unresolved := h.ledger.Unresolved(h.cfg.StaleAfter)
	verdict, err := h.classifier.Classify(ctx, memfile.FormatNotes(notes), len(unresolved), "")
	if err != nil {
		_ = h.events.Log(ctx, eventlog.TypeClassifierError, "heartbeat", leader.Name, "",
			fmt.Sprintf(`{"error":%q}`, err.Error()))
		return
	}
	if verdict == engine.VerdictNo {
		return
	}

	// Classification can take a while. If the leader picked up work in the
	// meantime, leave the inbox intact and let the next beat retry.
	if h.registry.IsBusy(leader.Name) || h.registry.IsQueued(leader.Name) {
		_ = h.events.Log(ctx, eventlog.TypeHeartbeatSkip, "heartbeat", leader.Name, "", `{"reason":"leader occupied"}`)
		return
	}

	// Consume the notes the verdict was based on so the next beat starts
	// from a clean inbox.
	drained, _ := h.store.DrainInbox(leader.Name)

	ch := h.coord.NewChain(leader.Channel)
	ch.Seed(leader.Name)
	trig := coordinator.Trigger{
		Channel: leader.Channel,
		From:    ledger.SystemFrom,
		Text:    buildHeartbeatPrompt(verdict, drained, len(unresolved)),
	}
	_ = h.events.Log(ctx, eventlog.TypePulse, "heartbeat", leader.Name, ch.ID(),
		fmt.Sprintf(`{"verdict":%q}`, verdict))
	_ = h.coord.Invoke(ctx, leader, trig, ch)
}

func buildHeartbeatPrompt(verdict string, notes []memfile.Note, unresolved int) string {
	var b strings.Builder
	reason := strings.TrimPrefix(verdict, engine.VerdictInvoke)
	reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
	b.WriteString("Periodic check-in. ")
	b.WriteString(reason)
	if unresolved > 0 {
		fmt.Fprintf(&b, "\n\n%d dispatched requests are still unresolved.", unresolved)
	}
	if len(notes) > 0 {
		b.WriteString("\n\nInbox notes:\n")
		b.WriteString(memfile.FormatNotes(notes))
	}
	return b.String()
}
