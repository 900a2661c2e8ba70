// Package trigger holds the producers that originate invocations without a
// human in the loop: follow-up sweeps over the dispatch ledger, heartbeat
// pulses through the classifier, inbox file watching, pending-task scans,
// and periodic digest/evaluation pulses. All of them funnel into the
// coordinator; none invokes an engine directly.
package trigger

import (
	"context"
	"sync"
	"time"

	"mococo/pkg/chain"
	"mococo/pkg/coordinator"
	"mococo/pkg/roster"
)

// Invoker is the slice of the coordinator the producers need. Satisfied by
// *coordinator.Coordinator.
type Invoker interface {
	Invoke(ctx context.Context, w *roster.Worker, trig coordinator.Trigger, ch *chain.Context) error
	NewChain(origin string) *chain.Context
}

// EventLogger records producer decisions. Satisfied by *eventlog.Writer.
type EventLogger interface {
	Log(ctx context.Context, evType, source, workerID, chainID, payload string) error
}

// Ticker abstracts time.Ticker so tests can step time by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker for an interval.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the production TickerFactory.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Task is one named periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler runs each registered task on its own interval. Runs of the same
// task never overlap; distinct tasks run independently.
type Scheduler struct {
	mu        sync.Mutex
	tasks     []Task
	newTicker TickerFactory
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
}

// NewScheduler creates an empty scheduler using real tickers.
func NewScheduler() *Scheduler {
	return &Scheduler{newTicker: NewRealTicker}
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.tasks = append(s.tasks, t)
}

// Start launches one goroutine per task. Tasks stop when ctx is canceled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.runTask(ctx, t)
	}
}

func (s *Scheduler) runTask(ctx context.Context, t Task) {
	defer s.wg.Done()
	tick := s.newTicker(t.Interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C():
			t.Run(ctx)
		}
	}
}

// Stop cancels all task loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
