// Package coordinator implements the root orchestration path: admission
// control against the concurrency registry, delegation to the execution
// engine, result handling, and chain-gated reactive re-dispatch of every
// worker the output mentions.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mococo/pkg/chain"
	"mococo/pkg/concurrency"
	"mococo/pkg/engine"
	"mococo/pkg/eventlog"
	"mococo/pkg/gateway"
	"mococo/pkg/ledger"
	"mococo/pkg/roster"
)

// Trigger is the message that causes an invocation: an incoming chat
// message, another worker's output, or a synthesized system message.
type Trigger struct {
	Channel string
	From    string // sender name; ledger.SystemFrom for system-originated
	Text    string
}

// EventLogger records scheduler decisions. Satisfied by *eventlog.Writer.
type EventLogger interface {
	Log(ctx context.Context, evType, source, workerID, chainID, payload string) error
}

// InboxAppender appends notes to a worker's inbox file. Satisfied by
// *memfile.Store.
type InboxAppender interface {
	AppendNote(worker, from, text string) error
}

// History records worker output into the conversation history. The
// conversation store is an external collaborator; NopHistory stands in when
// none is wired.
type History interface {
	Append(ctx context.Context, channel, worker, text string) error
}

// NopHistory discards history appends.
type NopHistory struct{}

// Append discards the entry.
func (NopHistory) Append(context.Context, string, string, string) error { return nil }

// Config holds coordinator tuning.
type Config struct {
	// MaxParallelDispatch bounds concurrently running reactive dispatches
	// (default 4).
	MaxParallelDispatch int
	// Chains configures budget and loop detection for new child dispatch.
	Chains chain.Config
}

func (c Config) withDefaults() Config {
	out := c
	if out.MaxParallelDispatch == 0 {
		out.MaxParallelDispatch = 4
	}
	out.Chains = out.Chains.WithDefaults()
	return out
}

// Coordinator ties the scheduler components together per invocation.
type Coordinator struct {
	cfg      Config
	registry *concurrency.Registry
	ledger   *ledger.Ledger
	engine   engine.Executor
	gateway  gateway.Messenger
	roster   *roster.Roster
	inbox    InboxAppender
	history  History
	events   EventLogger

	sem chan struct{}
	wg  sync.WaitGroup

	// nowFunc allows tests to control time.
	nowFunc func() time.Time
}

// New creates a Coordinator. All collaborators are required except history,
// which defaults to NopHistory when nil.
func New(cfg Config, reg *concurrency.Registry, led *ledger.Ledger, eng engine.Executor, gw gateway.Messenger, ros *roster.Roster, inbox InboxAppender, hist History, events EventLogger) *Coordinator {
	resolved := cfg.withDefaults()
	if hist == nil {
		hist = NopHistory{}
	}
	return &Coordinator{
		cfg:      resolved,
		registry: reg,
		ledger:   led,
		engine:   eng,
		gateway:  gw,
		roster:   ros,
		inbox:    inbox,
		history:  hist,
		events:   events,
		sem:      make(chan struct{}, resolved.MaxParallelDispatch),
		nowFunc:  time.Now,
	}
}

// NewChain creates a fresh chain for a root trigger on the given channel.
func (c *Coordinator) NewChain(origin string) *chain.Context {
	return chain.New(c.cfg.Chains, origin)
}

// Invoke runs one invocation of a worker against a trigger message.
//
// Admission: a request for a worker that already has a queued invocation is
// dropped (for non-leader workers, a note lands in the leader's inbox so
// dropped duplicate work is not invisible). Otherwise the call waits its
// turn in FIFO order, executes through the engine, and on success resolves
// matching ledger records and reactively dispatches every mentioned worker
// through chain gating.
//
// Whatever the outcome, the worker is released and the progress indicator
// stopped before Invoke returns.
func (c *Coordinator) Invoke(ctx context.Context, w *roster.Worker, trig Trigger, ch *chain.Context) error {
	if w == nil || w.Human {
		return nil
	}

	if c.registry.IsQueued(w.Name) {
		_ = c.events.Log(ctx, eventlog.TypeDispatchDrop, "coordinator", w.Name, ch.ID(),
			fmt.Sprintf(`{"reason":"already queued","trigger":%q}`, firstLine(trig.Text)))
		if !w.Leader {
			if leader := c.roster.Leader(); leader != nil {
				_ = c.inbox.AppendNote(leader.Name, ledger.SystemFrom,
					fmt.Sprintf("skipped invocation of %s (already queued): %s", w.Name, firstLine(trig.Text)))
			}
		}
		return nil
	}

	if err := c.registry.WaitForFree(ctx, w.Name, firstLine(trig.Text)); err != nil {
		return fmt.Errorf("wait for %s: %w", w.Name, err)
	}
	c.registry.MarkBusy(w.Name, firstLine(trig.Text))
	stopProgress := c.gateway.ShowProgress(ctx, trig.Channel)

	// The single most important correctness property: the worker must never
	// remain busy after an invocation, or the scheduler deadlocks for it.
	defer func() {
		stopProgress()
		c.registry.MarkFree(w.Name)
	}()

	started := c.nowFunc()
	_ = c.events.Log(ctx, eventlog.TypeInvokeStart, "coordinator", w.Name, ch.ID(),
		fmt.Sprintf(`{"from":%q,"channel":%q}`, trig.From, trig.Channel))

	res, err := c.engine.Execute(ctx, w, buildPrompt(trig))
	if err != nil {
		_ = c.events.Log(ctx, eventlog.TypeInvokeError, "coordinator", w.Name, ch.ID(),
			fmt.Sprintf(`{"error":%q}`, err.Error()))
		_ = c.gateway.Post(ctx, trig.Channel, fmt.Sprintf("%s could not complete this request: %v", w.Name, err))
		return fmt.Errorf("invoke %s: %w", w.Name, err)
	}

	_ = c.events.Log(ctx, eventlog.TypeInvokeDone, "coordinator", w.Name, ch.ID(),
		fmt.Sprintf(`{"cost_usd":%.4f,"elapsed_ms":%d}`, res.Cost, c.nowFunc().Sub(started).Milliseconds()))

	_ = c.gateway.Post(ctx, trig.Channel, res.Output)
	_ = c.history.Append(ctx, trig.Channel, w.Name, res.Output)

	mentions := ExtractMentions(res.Output, c.roster)

	// The responder's output settles any dispatch that sent work to it.
	if n := c.ledger.Resolve(w.Name, mentionNames(mentions)); n > 0 {
		_ = c.events.Log(ctx, eventlog.TypeResolve, "coordinator", w.Name, ch.ID(),
			fmt.Sprintf(`{"count":%d}`, n))
	}

	c.reactiveDispatch(ctx, w, trig, ch, res.Output, mentions)
	return nil
}

// reactiveDispatch fires a follow-on invocation for every mentioned worker
// that passes the queued, loop and budget gates. Dispatches proceed
// independently on the bounded runner.
func (c *Coordinator) reactiveDispatch(ctx context.Context, from *roster.Worker, trig Trigger, ch *chain.Context, output string, mentions []*roster.Worker) {
	for _, m := range mentions {
		if m.Name == from.Name || m.Human {
			continue
		}
		if c.registry.IsQueued(m.Name) {
			_ = c.events.Log(ctx, eventlog.TypeDispatchDrop, "coordinator", m.Name, ch.ID(),
				`{"reason":"already queued"}`)
			continue
		}
		if ch.Exhausted() {
			_ = c.events.Log(ctx, eventlog.TypeBudgetStop, "coordinator", m.Name, ch.ID(),
				fmt.Sprintf(`{"invocations":%d}`, ch.Invocations()))
			if ch.BudgetNoticeOnce() {
				_ = c.gateway.Post(ctx, ch.Origin(),
					fmt.Sprintf("dispatch chain stopped: budget of %d invocations spent", ch.Invocations()))
			}
			break
		}
		if ch.DetectLoop(m.Name) {
			_ = c.events.Log(ctx, eventlog.TypeLoopStop, "coordinator", m.Name, ch.ID(),
				fmt.Sprintf(`{"trail":%q}`, strings.Join(ch.Trail(), ",")))
			continue
		}

		rec := c.ledger.Record(ch.ID(), from.Name, m.Name, trig.Channel, firstLine(output))
		ch.Advance(m.Name)
		_ = c.events.Log(ctx, eventlog.TypeDispatch, "coordinator", m.Name, ch.ID(),
			fmt.Sprintf(`{"from":%q,"record":%q}`, from.Name, rec.ID))

		target := m
		next := Trigger{Channel: trig.Channel, From: from.Name, Text: output}
		c.submit(func() {
			_ = c.Invoke(ctx, target, next, ch)
		})
	}
}

// buildPrompt frames the trigger for the engine.
func buildPrompt(trig Trigger) string {
	return fmt.Sprintf("[from %s in #%s]\n%s", trig.From, trig.Channel, trig.Text)
}

// mentionNames extracts the names of mentioned participants.
func mentionNames(mentions []*roster.Worker) []string {
	out := make([]string, 0, len(mentions))
	for _, m := range mentions {
		out = append(out, m.Name)
	}
	return out
}

// firstLine returns the first line of s, truncated for labels and reasons.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 120
	if len(s) > max {
		s = s[:max]
	}
	return strings.TrimSpace(s)
}
