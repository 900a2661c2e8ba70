package trigger

import (
	"context"
	"fmt"

	"mococo/pkg/concurrency"
	"mococo/pkg/coordinator"
	"mococo/pkg/eventlog"
	"mococo/pkg/ledger"
	"mococo/pkg/roster"
)

// Pulse sends a fixed system prompt to the leader on a schedule. Two pulses
// ship by default: the daily digest and the periodic self-evaluation.
type Pulse struct {
	name     string
	prompt   string
	roster   *roster.Roster
	registry *concurrency.Registry
	coord    Invoker
	events   EventLogger
}

// DigestPrompt asks the leader to summarize the day across workers.
const DigestPrompt = "Write the daily digest: summarize what each worker accomplished, " +
	"what is still in flight, and anything that needs a human decision."

// EvaluationPrompt asks the leader to review recent dispatch quality.
const EvaluationPrompt = "Review recent activity: are workers stuck, duplicating effort, " +
	"or sitting on unresolved requests? Redispatch or reprioritize as needed."

// NewPulse wires a named pulse producer.
func NewPulse(name, prompt string, ros *roster.Roster, reg *concurrency.Registry, coord Invoker, events EventLogger) *Pulse {
	return &Pulse{
		name:     name,
		prompt:   prompt,
		roster:   ros,
		registry: reg,
		coord:    coord,
		events:   events,
	}
}

// Run fires the pulse at the leader unless the leader is occupied, in which
// case the pulse is skipped until its next interval.
func (p *Pulse) Run(ctx context.Context) {
	leader := p.roster.Leader()
	if leader == nil {
		return
	}
	if p.registry.IsBusy(leader.Name) || p.registry.IsQueued(leader.Name) {
		_ = p.events.Log(ctx, eventlog.TypeScanSkip, p.name, leader.Name, "", `{"reason":"occupied"}`)
		return
	}

	ch := p.coord.NewChain(leader.Channel)
	ch.Seed(leader.Name)
	trig := coordinator.Trigger{
		Channel: leader.Channel,
		From:    ledger.SystemFrom,
		Text:    p.prompt,
	}
	_ = p.events.Log(ctx, eventlog.TypePulse, p.name, leader.Name, ch.ID(),
		fmt.Sprintf(`{"pulse":%q}`, p.name))
	_ = p.coord.Invoke(ctx, leader, trig, ch)
}
