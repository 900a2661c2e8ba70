package trigger //nolint:testpackage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mococo/pkg/concurrency"
	"mococo/pkg/eventlog"
	"mococo/pkg/ledger"
	"mococo/pkg/memfile"
)

type heartbeatFixture struct {
	hb     *Heartbeat
	cl     *mockClassifier
	inv    *mockInvoker
	events *mockEvents
	reg    *concurrency.Registry
	led    *ledger.Ledger
	store  *memfile.Store
}

func newHeartbeatFixture(t *testing.T) *heartbeatFixture {
	t.Helper()
	f := &heartbeatFixture{
		cl:     &mockClassifier{verdict: "NO"},
		inv:    &mockInvoker{},
		events: &mockEvents{},
		reg:    concurrency.NewRegistry(),
		led:    ledger.New(ledger.Config{}),
		store:  memfile.NewStore(t.TempDir()),
	}
	f.hb = NewHeartbeat(HeartbeatConfig{}, f.cl, f.inv, testRoster(t), f.reg, f.led, f.store, f.events)
	return f
}

func TestHeartbeatInvokeVerdictDrainsInbox(t *testing.T) {
	f := newHeartbeatFixture(t)
	f.cl.verdict = "INVOKE: bob reported a failure"
	if err := f.store.AppendNote("alice", "bob", "build is red"); err != nil {
		t.Fatalf("append note: %v", err)
	}

	f.hb.Run(context.Background())

	call := f.inv.lastCall(t)
	if call.worker != "alice" {
		t.Fatalf("invoked %q, want leader alice", call.worker)
	}
	if !strings.Contains(call.trig.Text, "bob reported a failure") {
		t.Fatalf("verdict reason missing from prompt: %q", call.trig.Text)
	}
	if !strings.Contains(call.trig.Text, "build is red") {
		t.Fatalf("inbox note missing from prompt: %q", call.trig.Text)
	}
	if f.store.InboxNonEmpty("alice") {
		t.Fatal("inbox not drained after delivery")
	}
	if f.events.count(eventlog.TypePulse) != 1 {
		t.Fatal("pulse not logged")
	}
}

func TestHeartbeatNoVerdictDoesNothing(t *testing.T) {
	f := newHeartbeatFixture(t)
	if err := f.store.AppendNote("alice", "bob", "fyi only"); err != nil {
		t.Fatalf("append note: %v", err)
	}

	f.hb.Run(context.Background())

	if f.inv.callCount() != 0 {
		t.Fatal("NO verdict still invoked the leader")
	}
	if !f.store.InboxNonEmpty("alice") {
		t.Fatal("inbox consumed without an invocation")
	}
}

func TestHeartbeatClassifierFailureSkipsCycle(t *testing.T) {
	f := newHeartbeatFixture(t)
	f.cl.err = errors.New("model unavailable")
	if err := f.store.AppendNote("alice", "bob", "important"); err != nil {
		t.Fatalf("append note: %v", err)
	}

	f.hb.Run(context.Background())

	if f.inv.callCount() != 0 {
		t.Fatal("classifier failure must not invoke")
	}
	if f.events.count(eventlog.TypeClassifierError) != 1 {
		t.Fatal("classifier error not logged")
	}
	if !f.store.InboxNonEmpty("alice") {
		t.Fatal("notes lost on a failed cycle")
	}
}

func TestHeartbeatSkipsOccupiedLeader(t *testing.T) {
	f := newHeartbeatFixture(t)
	f.cl.verdict = "INVOKE: anything"
	f.reg.MarkBusy("alice", "working")

	f.hb.Run(context.Background())

	if f.inv.callCount() != 0 {
		t.Fatal("busy leader invoked")
	}
	if f.events.count(eventlog.TypeHeartbeatSkip) != 1 {
		t.Fatal("skip not logged")
	}
	if f.cl.calls != 0 {
		t.Fatal("classifier consulted for an occupied leader")
	}
}

func TestHeartbeatSkipsLeaderBusiedDuringClassify(t *testing.T) {
	f := newHeartbeatFixture(t)
	f.cl.verdict = "INVOKE: anything"
	f.cl.onClassify = func() { f.reg.MarkBusy("alice", "picked up work") }
	if err := f.store.AppendNote("alice", "bob", "still pending"); err != nil {
		t.Fatalf("append note: %v", err)
	}

	f.hb.Run(context.Background())

	if f.inv.callCount() != 0 {
		t.Fatal("leader invoked despite going busy during classification")
	}
	if f.events.count(eventlog.TypeHeartbeatSkip) != 1 {
		t.Fatal("skip not logged")
	}
	if !f.store.InboxNonEmpty("alice") {
		t.Fatal("notes drained on a skipped cycle")
	}
}

func TestHeartbeatOverlapSkipped(t *testing.T) {
	f := newHeartbeatFixture(t)
	f.cl.verdict = "INVOKE: anything"
	f.hb.running.Store(true)

	f.hb.Run(context.Background())

	if f.inv.callCount() != 0 || f.cl.calls != 0 {
		t.Fatal("overlapping beat ran anyway")
	}
	if f.events.count(eventlog.TypeHeartbeatSkip) != 1 {
		t.Fatal("overlap skip not logged")
	}
	if !f.hb.running.Load() {
		t.Fatal("overlap skip cleared the running flag it does not own")
	}
}
