package trigger //nolint:testpackage

import (
	"context"
	"testing"

	"mococo/pkg/concurrency"
	"mococo/pkg/eventlog"
	"mococo/pkg/ledger"
)

func TestPulseInvokesIdleLeader(t *testing.T) {
	inv := &mockInvoker{}
	events := &mockEvents{}
	reg := concurrency.NewRegistry()
	p := NewPulse("digest", DigestPrompt, testRoster(t), reg, inv, events)

	p.Run(context.Background())

	call := inv.lastCall(t)
	if call.worker != "alice" {
		t.Fatalf("pulse went to %q, want leader alice", call.worker)
	}
	if call.trig.From != ledger.SystemFrom {
		t.Fatalf("pulse from %q, want system", call.trig.From)
	}
	if call.trig.Text != DigestPrompt {
		t.Fatalf("pulse text = %q", call.trig.Text)
	}
	if events.count(eventlog.TypePulse) != 1 {
		t.Fatal("pulse not logged")
	}
}

func TestPulseSkipsOccupiedLeader(t *testing.T) {
	inv := &mockInvoker{}
	events := &mockEvents{}
	reg := concurrency.NewRegistry()
	reg.MarkBusy("alice", "working")
	p := NewPulse("evaluation", EvaluationPrompt, testRoster(t), reg, inv, events)

	p.Run(context.Background())

	if inv.callCount() != 0 {
		t.Fatal("pulse fired at a busy leader")
	}
}
