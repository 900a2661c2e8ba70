package trigger //nolint:testpackage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"mococo/pkg/concurrency"
	"mococo/pkg/eventlog"
	"mococo/pkg/memfile"
)

type scanFixture struct {
	scan   *PendingScan
	inv    *mockInvoker
	events *mockEvents
	reg    *concurrency.Registry
	store  *memfile.Store
	now    time.Time
}

func newScanFixture(t *testing.T, cfg PendingScanConfig) *scanFixture {
	t.Helper()
	f := &scanFixture{
		inv:    &mockInvoker{},
		events: &mockEvents{},
		reg:    concurrency.NewRegistry(),
		store:  memfile.NewStore(t.TempDir()),
		now:    time.Now(),
	}
	f.scan = NewPendingScan(cfg, f.store, testRoster(t), f.reg, f.inv, f.events)
	f.scan.nowFunc = func() time.Time { return f.now }
	return f
}

func (f *scanFixture) writePending(t *testing.T, worker string, entries ...string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("# Notes\n\n## Pending\n")
	for _, e := range entries {
		b.WriteString("- " + e + "\n")
	}
	if err := os.WriteFile(f.store.MemoryPath(worker), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write memory file: %v", err)
	}
}

func TestPendingScanInvokesIdleWorker(t *testing.T) {
	f := newScanFixture(t, PendingScanConfig{})
	f.writePending(t, "bob", "fix the flaky retry test #ch:build")

	f.scan.Run(context.Background())

	call := f.inv.lastCall(t)
	if call.worker != "bob" {
		t.Fatalf("invoked %q, want bob", call.worker)
	}
	if call.trig.Channel != "build" {
		t.Fatalf("channel = %q, want the task's #ch tag", call.trig.Channel)
	}
	if !strings.Contains(call.trig.Text, "fix the flaky retry test") {
		t.Fatalf("task text missing from prompt: %q", call.trig.Text)
	}
	if f.events.count(eventlog.TypeScanInvoke) != 1 {
		t.Fatal("scan_invoke not logged")
	}
}

func TestPendingScanCooldownPerWorker(t *testing.T) {
	f := newScanFixture(t, PendingScanConfig{Cooldown: time.Hour})
	f.writePending(t, "bob", "write the release notes #ch:docs")

	f.scan.Run(context.Background())
	f.scan.Run(context.Background())
	if got := f.inv.callCount(); got != 1 {
		t.Fatalf("worker invoked %d times inside cooldown, want 1", got)
	}

	f.now = f.now.Add(2 * time.Hour)
	f.scan.Run(context.Background())
	if got := f.inv.callCount(); got != 2 {
		t.Fatalf("worker not re-invoked after cooldown, calls = %d", got)
	}
}

func TestPendingScanCycleCap(t *testing.T) {
	f := newScanFixture(t, PendingScanConfig{CycleCap: 2})
	f.writePending(t, "bob", "task one #ch:build")
	f.writePending(t, "carol", "task two #ch:docs")
	f.writePending(t, "erin", "task three #ch:infra")

	f.scan.Run(context.Background())
	if got := f.inv.callCount(); got != 2 {
		t.Fatalf("%d invocations in one cycle, want cap of 2", got)
	}

	// The third worker gets its turn next cycle.
	f.scan.Run(context.Background())
	if got := f.inv.callCount(); got != 3 {
		t.Fatalf("remaining worker not picked up next cycle, calls = %d", got)
	}
}

func TestPendingScanSkipsOccupiedWorker(t *testing.T) {
	f := newScanFixture(t, PendingScanConfig{})
	f.writePending(t, "bob", "do something #ch:build")
	f.reg.MarkBusy("bob", "already working")

	f.scan.Run(context.Background())
	if f.inv.callCount() != 0 {
		t.Fatal("busy worker invoked by scan")
	}
	if f.events.count(eventlog.TypeScanSkip) != 1 {
		t.Fatal("scan_skip not logged")
	}
}

func TestPendingScanIgnoresBlockedAndMissing(t *testing.T) {
	f := newScanFixture(t, PendingScanConfig{})
	f.writePending(t, "bob", "[blocked] waiting on credentials #ch:build")
	// carol has no memory file at all.

	f.scan.Run(context.Background())
	if f.inv.callCount() != 0 {
		t.Fatal("blocked or missing tasks triggered an invocation")
	}
}
