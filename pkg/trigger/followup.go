package trigger

import (
	"context"
	"fmt"
	"time"

	"mococo/pkg/concurrency"
	"mococo/pkg/coordinator"
	"mococo/pkg/eventlog"
	"mococo/pkg/ledger"
	"mococo/pkg/roster"
)

// FollowUpConfig tunes the follow-up sweep over the dispatch ledger.
type FollowUpConfig struct {
	// NudgeAfter is how long a dispatch may sit unresolved before the
	// addressed worker gets a reminder (default 5m).
	NudgeAfter time.Duration
	// EscalateAfter is the age at which an unresolved dispatch goes to the
	// leader instead (default 15m).
	EscalateAfter time.Duration
	// NudgeCooldown is the minimum gap between nudges for one record
	// (default 30m).
	NudgeCooldown time.Duration
	// MaxNudges caps reminders per record (default 2).
	MaxNudges int
}

func (c FollowUpConfig) withDefaults() FollowUpConfig {
	out := c
	if out.NudgeAfter == 0 {
		out.NudgeAfter = 5 * time.Minute
	}
	if out.EscalateAfter == 0 {
		out.EscalateAfter = 15 * time.Minute
	}
	if out.NudgeCooldown == 0 {
		out.NudgeCooldown = 30 * time.Minute
	}
	if out.MaxNudges == 0 {
		out.MaxNudges = 2
	}
	return out
}

// FollowUp sweeps the ledger, nudges workers sitting on unresolved
// dispatches, and escalates the stalest ones to the leader.
type FollowUp struct {
	cfg      FollowUpConfig
	ledger   *ledger.Ledger
	registry *concurrency.Registry
	roster   *roster.Roster
	coord    Invoker
	events   EventLogger

	nowFunc func() time.Time
}

// NewFollowUp wires the follow-up producer.
func NewFollowUp(cfg FollowUpConfig, led *ledger.Ledger, reg *concurrency.Registry, ros *roster.Roster, coord Invoker, events EventLogger) *FollowUp {
	return &FollowUp{
		cfg:      cfg.withDefaults(),
		ledger:   led,
		registry: reg,
		roster:   ros,
		coord:    coord,
		events:   events,
		nowFunc:  time.Now,
	}
}

// Run performs one sweep. At most one nudge fires per sweep so a backlog of
// stale dispatches cannot flood the workers.
func (f *FollowUp) Run(ctx context.Context) {
	if evicted := f.ledger.Sweep(); evicted > 0 {
		_ = f.events.Log(ctx, eventlog.TypeLedgerSweep, "followup", "", "",
			fmt.Sprintf(`{"evicted":%d}`, evicted))
	}

	now := f.nowFunc()
	nudged := false
	for _, rec := range f.ledger.Unresolved(0) {
		age := now.Sub(rec.DispatchedAt)
		if age < f.cfg.NudgeAfter {
			continue
		}
		// A record that used up its nudges is closed rather than nudged or
		// escalated; the leader only hears about dispatches that stale out
		// before the cap.
		if rec.Nudges >= f.cfg.MaxNudges {
			f.ledger.ResolveByID(rec.ID)
			_ = f.events.Log(ctx, eventlog.TypeAutoResolve, "followup", rec.To, rec.ChainID,
				fmt.Sprintf(`{"record":%q,"reason":"nudge cap reached"}`, rec.ID))
			continue
		}
		if age >= f.cfg.EscalateAfter {
			f.escalate(ctx, rec)
			continue
		}
		if nudged {
			continue
		}
		if f.nudge(ctx, rec, now) {
			nudged = true
		}
	}
}

// nudge reminds the addressed worker about an unresolved dispatch. Skipped
// while the worker is occupied or inside the cooldown.
func (f *FollowUp) nudge(ctx context.Context, rec ledger.Record, now time.Time) bool {
	if !rec.LastNudge.IsZero() && now.Sub(rec.LastNudge) < f.cfg.NudgeCooldown {
		return false
	}
	w, ok := f.roster.Get(rec.To)
	if !ok || w.Human {
		return false
	}
	if f.registry.IsBusy(w.Name) || f.registry.IsQueued(w.Name) {
		return false
	}

	f.ledger.RecordNudge(rec.ID)
	_ = f.events.Log(ctx, eventlog.TypeNudge, "followup", w.Name, rec.ChainID,
		fmt.Sprintf(`{"record":%q,"nudges":%d}`, rec.ID, rec.Nudges+1))

	ch := f.coord.NewChain(rec.Channel)
	ch.Seed(w.Name)
	trig := coordinator.Trigger{
		Channel: rec.Channel,
		From:    ledger.SystemFrom,
		Text:    fmt.Sprintf("Reminder: %s asked you to handle this and has not heard back: %s", rec.From, rec.Reason),
	}
	_ = f.coord.Invoke(ctx, w, trig, ch)
	return true
}

// escalate hands a stale dispatch to the leader and closes the record so it
// is not escalated twice. If the leader is occupied the record stays open
// for the next sweep.
func (f *FollowUp) escalate(ctx context.Context, rec ledger.Record) {
	leader := f.roster.Leader()
	if leader == nil {
		return
	}
	if f.registry.IsBusy(leader.Name) || f.registry.IsQueued(leader.Name) {
		return
	}

	f.ledger.ResolveByID(rec.ID)
	_ = f.events.Log(ctx, eventlog.TypeEscalate, "followup", rec.To, rec.ChainID,
		fmt.Sprintf(`{"record":%q,"from":%q}`, rec.ID, rec.From))
	_ = f.events.Log(ctx, eventlog.TypeAutoResolve, "followup", rec.To, rec.ChainID,
		fmt.Sprintf(`{"record":%q,"reason":"escalated"}`, rec.ID))

	ch := f.coord.NewChain(rec.Channel)
	ch.Seed(leader.Name)
	trig := coordinator.Trigger{
		Channel: rec.Channel,
		From:    ledger.SystemFrom,
		Text: fmt.Sprintf("Escalation: %s was asked by %s to handle %q over %s ago and never responded. Decide how to proceed.",
			rec.To, rec.From, rec.Reason, f.nowFunc().Sub(rec.DispatchedAt).Round(time.Minute)),
	}
	_ = f.coord.Invoke(ctx, leader, trig, ch)
}
