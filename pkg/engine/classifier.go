package engine

import (
	"context"
	"fmt"
	"strings"
)

// VerdictNo is the classifier's "do nothing" answer.
const VerdictNo = "NO"

// VerdictInvoke prefixes a positive classifier verdict: "INVOKE: <reason>".
const VerdictInvoke = "INVOKE"

// ExecClassifier drives the agent CLI with a cheap model to answer the
// heartbeat question: should the leader be woken up. It is a black box to
// the scheduler; any malformed answer normalizes to "NO".
type ExecClassifier struct {
	bin    string
	model  string
	runner CommandRunner
}

// NewExecClassifier creates a classifier backed by the given CLI binary and
// model.
func NewExecClassifier(bin, model string) *ExecClassifier {
	return &ExecClassifier{bin: bin, model: model, runner: &ExecCommandRunner{}}
}

// NewExecClassifierWithRunner creates a classifier with a custom runner for
// tests.
func NewExecClassifierWithRunner(bin, model string, runner CommandRunner) *ExecClassifier {
	return &ExecClassifier{bin: bin, model: model, runner: runner}
}

// Classify asks whether the leader should be invoked given the current
// inbox, stale-dispatch count and severity reports.
func (c *ExecClassifier) Classify(ctx context.Context, inboxSummary string, unresolvedCount int, reportSummary string) (string, error) {
	prompt := fmt.Sprintf(
		"You triage a team leader's attention. Inbox:\n%s\nStale dispatches: %d\nReports:\n%s\n"+
			"Answer exactly NO, or INVOKE: <one-line reason> if the leader should act now.",
		inboxSummary, unresolvedCount, reportSummary)

	out, err := c.runner.Run(ctx, c.bin, "--model", c.model, "-p", prompt)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	return normalizeVerdict(string(out)), nil
}

// normalizeVerdict maps free-form classifier output onto the two-valued
// contract: anything that does not clearly start with INVOKE is NO.
func normalizeVerdict(out string) string {
	v := strings.TrimSpace(out)
	if i := strings.Index(v, "\n"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	if strings.HasPrefix(strings.ToUpper(v), VerdictInvoke) {
		return v
	}
	return VerdictNo
}
