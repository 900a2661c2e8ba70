package coordinator //nolint:testpackage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"mococo/pkg/chain"
	"mococo/pkg/concurrency"
	"mococo/pkg/engine"
	"mococo/pkg/eventlog"
	"mococo/pkg/ledger"
	"mococo/pkg/roster"
)

// --- mocks ---

type mockEngine struct {
	mu      sync.Mutex
	outputs map[string]string // worker name -> output
	err     error
	calls   []string
}

func (m *mockEngine) Execute(_ context.Context, w *roster.Worker, _ string) (engine.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, w.Name)
	if m.err != nil {
		return engine.Result{}, m.err
	}
	return engine.Result{Output: m.outputs[w.Name], Cost: 0.01}, nil
}

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type post struct {
	channel string
	content string
}

type mockGateway struct {
	mu    sync.Mutex
	posts []post
}

func (m *mockGateway) Post(_ context.Context, channel, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, post{channel, content})
	return nil
}

func (m *mockGateway) ShowProgress(context.Context, string) (stop func()) { return func() {} }

func (m *mockGateway) find(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if strings.Contains(p.content, substr) {
			return true
		}
	}
	return false
}

type mockEvents struct {
	mu    sync.Mutex
	types []string
}

func (m *mockEvents) Log(_ context.Context, evType, _, _, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, evType)
	return nil
}

func (m *mockEvents) count(evType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.types {
		if t == evType {
			n++
		}
	}
	return n
}

type inboxNote struct {
	worker string
	from   string
	text   string
}

type mockInbox struct {
	mu    sync.Mutex
	notes []inboxNote
}

func (m *mockInbox) AppendNote(worker, from, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, inboxNote{worker, from, text})
	return nil
}

// --- helpers ---

func testRoster(t *testing.T) *roster.Roster {
	t.Helper()
	ros, err := roster.New([]*roster.Worker{
		{Name: "alice", Leader: true, Channel: "general"},
		{Name: "bob", Channel: "general"},
		{Name: "carol", Channel: "general"},
		{Name: "dave", Human: true},
	})
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	return ros
}

type fixture struct {
	coord   *Coordinator
	eng     *mockEngine
	gw      *mockGateway
	events  *mockEvents
	inbox   *mockInbox
	reg     *concurrency.Registry
	led     *ledger.Ledger
	ros     *roster.Roster
	chainCf chain.Config
}

func newFixture(t *testing.T, cfg Config, outputs map[string]string) *fixture {
	t.Helper()
	f := &fixture{
		eng:    &mockEngine{outputs: outputs},
		gw:     &mockGateway{},
		events: &mockEvents{},
		inbox:  &mockInbox{},
		reg:    concurrency.NewRegistry(),
		led:    ledger.New(ledger.Config{}),
		ros:    testRoster(t),
	}
	f.chainCf = cfg.Chains.WithDefaults()
	f.coord = New(cfg, f.reg, f.led, f.eng, f.gw, f.ros, f.inbox, nil, f.events)
	return f
}

func (f *fixture) worker(t *testing.T, name string) *roster.Worker {
	t.Helper()
	w, ok := f.ros.Get(name)
	if !ok {
		t.Fatalf("worker %s not in roster", name)
	}
	return w
}

// --- tests ---

func TestInvokePostsOutputAndFreesWorker(t *testing.T) {
	f := newFixture(t, Config{}, map[string]string{"bob": "all done here"})
	ch := f.coord.NewChain("general")
	ch.Seed("bob")

	err := f.coord.Invoke(context.Background(), f.worker(t, "bob"), Trigger{Channel: "general", From: "dave", Text: "do the thing"}, ch)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !f.gw.find("all done here") {
		t.Fatal("output not posted to channel")
	}
	if f.reg.IsBusy("bob") {
		t.Fatal("worker still busy after invocation")
	}
	if f.led.Len() != 0 {
		t.Fatalf("ledger has %d records, want 0", f.led.Len())
	}
}

func TestInvokeDropsQueuedWorker(t *testing.T) {
	f := newFixture(t, Config{}, map[string]string{"bob": "ok"})
	f.reg.MarkBusy("bob", "long task")

	waitCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.reg.WaitForFree(waitCtx, "bob", "queued task") }()
	deadline := time.Now().Add(time.Second)
	for f.reg.QueueLen("bob") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("waiter never queued")
		}
		time.Sleep(time.Millisecond)
	}

	ch := f.coord.NewChain("general")
	err := f.coord.Invoke(context.Background(), f.worker(t, "bob"), Trigger{Channel: "general", From: "alice", Text: "more work"}, ch)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got := f.eng.callCount(); got != 0 {
		t.Fatalf("engine called %d times for a dropped invocation", got)
	}
	if f.events.count(eventlog.TypeDispatchDrop) != 1 {
		t.Fatal("drop not logged")
	}
	f.inbox.mu.Lock()
	defer f.inbox.mu.Unlock()
	if len(f.inbox.notes) != 1 || f.inbox.notes[0].worker != "alice" {
		t.Fatalf("expected one drop note in leader inbox, got %+v", f.inbox.notes)
	}
	if f.inbox.notes[0].from != ledger.SystemFrom {
		t.Fatalf("drop note from = %q, want system", f.inbox.notes[0].from)
	}
}

func TestInvokeErrorPostsNotice(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.eng.err = errors.New("engine exploded")
	ch := f.coord.NewChain("general")

	err := f.coord.Invoke(context.Background(), f.worker(t, "bob"), Trigger{Channel: "general", From: "dave", Text: "go"}, ch)
	if err == nil {
		t.Fatal("expected error")
	}
	if !f.gw.find("could not complete") {
		t.Fatal("failure notice not posted")
	}
	if f.reg.IsBusy("bob") {
		t.Fatal("worker leaked busy after failed invocation")
	}
	if f.events.count(eventlog.TypeInvokeError) != 1 {
		t.Fatal("invoke_error not logged")
	}
}

func TestHumanAndSelfMentionsNotDispatched(t *testing.T) {
	f := newFixture(t, Config{}, map[string]string{"bob": "thanks @dave, see my notes @bob"})
	ch := f.coord.NewChain("general")
	ch.Seed("bob")

	if err := f.coord.Invoke(context.Background(), f.worker(t, "bob"), Trigger{Channel: "general", From: "dave", Text: "go"}, ch); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !f.coord.Drain(2 * time.Second) {
		t.Fatal("drain timed out")
	}
	if got := f.eng.callCount(); got != 1 {
		t.Fatalf("engine called %d times, want 1", got)
	}
	if f.led.Len() != 0 {
		t.Fatal("ledger recorded dispatch for human or self mention")
	}
}

// Ping-pong between two workers runs until loop detection stops it. With the
// default thresholds the trail reaches six entries (A B A B A B) before the
// period-2 cycle is recognized, so the engine runs five times in total and
// every dispatch record ends up resolved by the responder's reply.
func TestPingPongStoppedByLoopDetection(t *testing.T) {
	f := newFixture(t, Config{}, map[string]string{
		"alice": "over to you @bob",
		"bob":   "back to you @alice",
	})
	ch := f.coord.NewChain("general")
	ch.Seed("alice")

	if err := f.coord.Invoke(context.Background(), f.worker(t, "alice"), Trigger{Channel: "general", From: "dave", Text: "kick off"}, ch); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !f.coord.Drain(5 * time.Second) {
		t.Fatal("drain timed out")
	}

	if got := f.eng.callCount(); got != 5 {
		t.Fatalf("engine called %d times, want 5", got)
	}
	if f.events.count(eventlog.TypeLoopStop) != 1 {
		t.Fatalf("loop_stop logged %d times, want 1", f.events.count(eventlog.TypeLoopStop))
	}
	if f.led.Len() != 4 {
		t.Fatalf("ledger has %d records, want 4", f.led.Len())
	}
	if unresolved := f.led.Unresolved(0); len(unresolved) != 0 {
		t.Fatalf("%d dispatch records left unresolved", len(unresolved))
	}
}

func TestBudgetStopsChainWithOneNotice(t *testing.T) {
	f := newFixture(t, Config{Chains: chain.Config{MaxBudget: 2}}, map[string]string{
		"alice": "over to you @bob",
		"bob":   "back to you @alice",
	})
	ch := f.coord.NewChain("general")
	ch.Seed("alice")

	if err := f.coord.Invoke(context.Background(), f.worker(t, "alice"), Trigger{Channel: "general", From: "dave", Text: "kick off"}, ch); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !f.coord.Drain(5 * time.Second) {
		t.Fatal("drain timed out")
	}

	// Root invoke plus two budgeted dispatches.
	if got := f.eng.callCount(); got != 3 {
		t.Fatalf("engine called %d times, want 3", got)
	}
	if f.events.count(eventlog.TypeBudgetStop) != 1 {
		t.Fatalf("budget_stop logged %d times, want 1", f.events.count(eventlog.TypeBudgetStop))
	}
	notices := 0
	f.gw.mu.Lock()
	for _, p := range f.gw.posts {
		if strings.Contains(p.content, "budget") {
			notices++
		}
	}
	f.gw.mu.Unlock()
	if notices != 1 {
		t.Fatalf("budget notice posted %d times, want 1", notices)
	}
}

func TestParallelDispatchBounded(t *testing.T) {
	f := newFixture(t, Config{MaxParallelDispatch: 2}, nil)

	var mu sync.Mutex
	active, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		f.coord.submit(func() {
			defer wg.Done()
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		})
	}
	wg.Wait()
	if peak > 2 {
		t.Fatalf("peak parallel dispatch %d exceeds bound 2", peak)
	}
}

func TestDrainTimesOutOnStuckDispatch(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	release := make(chan struct{})
	f.coord.submit(func() { <-release })

	if f.coord.Drain(50 * time.Millisecond) {
		t.Fatal("drain reported clean with a dispatch still running")
	}
	close(release)
	if !f.coord.Drain(time.Second) {
		t.Fatal("drain did not complete after release")
	}
}

func TestExtractMentions(t *testing.T) {
	ros := testRoster(t)
	ros.SetExternalID("carol", "424242")

	cases := []struct {
		name string
		text string
		want []string
	}{
		{"plain", "please review @bob", []string{"bob"}},
		{"case insensitive", "ping @BOB", []string{"bob"}},
		{"external id", "handing to <@424242> now", []string{"carol"}},
		{"external id bang", "also <@!424242>", []string{"carol"}},
		{"dedupe keeps order", "@bob then @carol then @bob again", []string{"bob", "carol"}},
		{"unknown dropped", "cc @mallory and @bob", []string{"bob"}},
		{"no mentions", "nothing here", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractMentions(tc.text, ros)
			names := make([]string, 0, len(got))
			for _, w := range got {
				names = append(names, w.Name)
			}
			if fmt.Sprint(names) != fmt.Sprint(tc.want) {
				t.Fatalf("mentions = %v, want %v", names, tc.want)
			}
		})
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("one\ntwo"); got != "one" {
		t.Fatalf("firstLine = %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := firstLine(long); len(got) != 120 {
		t.Fatalf("firstLine length = %d, want 120", len(got))
	}
}
