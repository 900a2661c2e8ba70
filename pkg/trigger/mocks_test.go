package trigger //nolint:testpackage

import (
	"context"
	"sync"
	"testing"

	"mococo/pkg/chain"
	"mococo/pkg/coordinator"
	"mococo/pkg/roster"
)

type invocation struct {
	worker  string
	trig    coordinator.Trigger
	chainID string
}

type mockInvoker struct {
	mu    sync.Mutex
	calls []invocation
	err   error
}

func (m *mockInvoker) NewChain(origin string) *chain.Context {
	return chain.New(chain.Config{}, origin)
}

func (m *mockInvoker) Invoke(_ context.Context, w *roster.Worker, trig coordinator.Trigger, ch *chain.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, invocation{worker: w.Name, trig: trig, chainID: ch.ID()})
	return m.err
}

func (m *mockInvoker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockInvoker) lastCall(t *testing.T) invocation {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		t.Fatal("no invocations recorded")
	}
	return m.calls[len(m.calls)-1]
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

type mockClassifier struct {
	verdict string
	err     error
	calls   int

	// onClassify, when set, runs inside Classify to rearrange the world
	// while the call is in flight.
	onClassify func()
}

func (m *mockClassifier) Classify(context.Context, string, int, string) (string, error) {
	m.calls++
	if m.onClassify != nil {
		m.onClassify()
	}
	if m.err != nil {
		return "", m.err
	}
	return m.verdict, nil
}

func testRoster(t *testing.T) *roster.Roster {
	t.Helper()
	ros, err := roster.New([]*roster.Worker{
		{Name: "alice", Leader: true, Channel: "general"},
		{Name: "bob", Channel: "build"},
		{Name: "carol", Channel: "docs"},
		{Name: "erin", Channel: "infra"},
	})
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	return ros
}
