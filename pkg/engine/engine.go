// Package engine wraps the external AI execution engine. The scheduler only
// needs a final output string and a cost metric per invocation; prompt
// construction, streaming and subprocess plumbing belong to the engine CLI
// itself.
package engine

import (
	"context"

	"mococo/pkg/roster"
)

// Result is the outcome of one engine execution.
type Result struct {
	Output string  `json:"output"`
	Cost   float64 `json:"cost_usd"`
}

// Executor runs one worker invocation to completion. This is the scheduler's
// only long-latency suspension point; implementations must honor ctx.
type Executor interface {
	Execute(ctx context.Context, w *roster.Worker, prompt string) (Result, error)
}

// Classifier is the cheap advisory gate used by the heartbeat loop. It
// returns "NO" or "INVOKE: <reason>". Failures mean "do nothing this cycle".
type Classifier interface {
	Classify(ctx context.Context, inboxSummary string, unresolvedCount int, reportSummary string) (string, error)
}
